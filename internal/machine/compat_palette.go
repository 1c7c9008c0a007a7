package machine

import (
	"strings"

	"github.com/nullterra/dmgcore/internal/cart"
)

// compatTitleExact maps exact, normalized titles to a preferred DMG
// compatibility palette ID. IDs are an opaque ranking a host-side palette
// table indexes into (0=Green, 1=Sepia, 2=Blue, 3=Red, 4=Pastel). The
// header-checksum fallback below yields 0..5, so it can also return 5.
var compatTitleExact = map[string]int{
	"TETRIS":              2,
	"TETRIS DX":           2,
	"SUPER MARIO LAND":    3,
	"SUPER MARIO LAND 2":  3,
	"DR. MARIO":           4,
	"DONKEY KONG":         1,
	"THE LEGEND OF ZELDA": 0,
	"ZELDA":               0,
	"METROID II":          3,
	"KIRBY'S DREAM LAND":  4,
	"MEGA MAN":            2,
	"MEGAMAN":             2,
	"WARIO LAND":          1,
	"POKEMON YELLOW":      4,
	"POKEMON RED":         4,
	"POKEMON BLUE":        4,
	"POCKET MONSTERS":     4,
}

type compatContainsRule struct {
	substr string
	id     int
}

// compatTitleContains applies broader substring heuristics for families
// whose titles vary (region suffixes, sequel numbers).
var compatTitleContains = []compatContainsRule{
	{"TETRIS", 2},
	{"MARIO", 3},
	{"ZELDA", 0},
	{"KIRBY", 4},
	{"DONKEY KONG", 1},
	{"METROID", 3},
	{"MEGA MAN", 2},
	{"MEGAMAN", 2},
	{"WARIO", 1},
	{"POKEMON", 4},
	{"POCKET MONSTERS", 4},
}

// autoCompatPaletteFromHeader picks a default DMG compatibility palette for
// a cartridge using a small title table, then a stable fallback derived
// from the licensee and header checksum. Returns (id, true) whenever a
// header is available.
func autoCompatPaletteFromHeader(h *cart.Header) (int, bool) {
	if h == nil {
		return 0, false
	}
	t := strings.ToUpper(strings.TrimSpace(strings.TrimRight(h.Title, "\x00")))
	if id, ok := compatTitleExact[t]; ok {
		return id, true
	}
	for _, r := range compatTitleContains {
		if strings.Contains(t, r.substr) {
			return r.id, true
		}
	}
	nintendo := false
	if h.OldLicensee == 0x33 {
		nintendo = strings.ToUpper(h.NewLicensee) == "01"
	} else {
		nintendo = h.OldLicensee == 0x01
	}
	if nintendo {
		// Stable across sessions: derived from the header checksum, not
		// randomized, so the same cartridge always gets the same palette.
		return int(h.HeaderChecksum) % 6, true
	}
	return 0, true
}
