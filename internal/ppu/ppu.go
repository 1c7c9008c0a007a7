// Package ppu implements the DMG picture processor: the LCDC/STAT/scroll
// register block, OAM scan, a per-dot pixel-fetcher state machine feeding
// background/window and object FIFOs, the LCD driver that composites and
// writes RGBA samples into a double-buffered framebuffer, and the OAM DMA
// copier.
package ppu

// InterruptRequester requests a DMG interrupt by bit number.
type InterruptRequester func(bit int)

const (
	irqVBlank = 0
	irqSTAT   = 1

	ScreenWidth  = 160
	ScreenHeight = 144
	dotsPerLine  = 456
	linesPerFrame = 154
)

type mode byte

const (
	modeHBlank mode = 0
	modeVBlank mode = 1
	modeOAM    mode = 2
	modeDraw   mode = 3
)

type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc, stat         byte
	scy, scx           byte
	ly, lyc            byte
	bgp, obp0, obp1    byte
	wy, wx             byte

	dot int // dots within current line [0..455]

	windowLineCounter int
	windowActiveLine  bool // window has been triggered on this line already

	lineSprites []spriteEntry

	fetcher fetcher
	bgFIFO  pixelFIFO
	objFIFO pixelFIFO

	drawX     int
	scxDiscard int // pending SCX%8 pixels to discard at line start

	// double-buffered framebuffer; front is read by the host, back is drawn into
	buffers  [2][ScreenWidth * ScreenHeight * 4]byte
	frontIdx int

	dma dmaUnit

	req InterruptRequester
}

type spriteEntry struct {
	y, x, tile, attr byte
	oamIndex         int
}

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req}
	p.dma.read = p.Read
	p.dma.writeOAM = func(i int, v byte) { p.oam[i] = v }
	return p
}

// Read/Write are the raw address-space accessors the bus uses for OAM DMA
// source reads; they bypass the CPU-facing access gating below.
func (p *PPU) Read(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return p.oam[addr-0xFE00]
	default:
		return 0xFF
	}
}

func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.currentMode() == modeDraw {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.currentMode(); m == modeOAM || m == modeDraw {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF46:
		return p.dma.reg
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.currentMode() == modeDraw {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.currentMode(); m == modeOAM || m == modeDraw {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&0x80 != 0 && value&0x80 == 0 {
			p.ly = 0
			p.dot = 0
			p.windowLineCounter = 0
			p.setMode(modeHBlank)
		} else if prev&0x80 == 0 && value&0x80 != 0 {
			p.ly = 0
			p.dot = 0
			p.startLine()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// read-only; ignored
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF46:
		p.dma.start(value)
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

func (p *PPU) currentMode() mode { return mode(p.stat & 0x03) }

// Tick advances the PPU (and its independent OAM DMA) by one T-cycle.
func (p *PPU) Tick() {
	p.dma.tick()

	if p.lcdc&0x80 == 0 {
		return
	}

	if p.currentMode() != modeVBlank {
		p.stepDrawing()
	}

	p.dot++
	if p.dot >= dotsPerLine {
		p.dot = 0
		p.advanceLine()
	}
}

func (p *PPU) advanceLine() {
	if p.windowActiveLine {
		p.windowLineCounter++
	}
	p.ly++
	if p.ly == ScreenHeight {
		p.setMode(modeVBlank)
		if p.req != nil {
			p.req(irqVBlank)
			if p.stat&(1<<4) != 0 {
				p.req(irqSTAT)
			}
		}
		p.flip()
	} else if p.ly > 153 {
		p.ly = 0
		p.windowLineCounter = 0
		p.startLine()
	} else if p.ly < ScreenHeight {
		p.startLine()
	}
	p.updateLYC()
}

func (p *PPU) startLine() {
	p.windowActiveLine = false
	p.scanOAM()
	p.setMode(modeOAM)
}

// scanOAM keeps up to 10 sprites overlapping the current line, sorted by X
// ascending (stable for equal X).
func (p *PPU) scanOAM() {
	p.lineSprites = p.lineSprites[:0]
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	for i := 0; i < 40 && len(p.lineSprites) < 10; i++ {
		base := i * 4
		y := p.oam[base]
		top := int(y) - 16
		if int(p.ly) < top || int(p.ly) >= top+height {
			continue
		}
		p.lineSprites = append(p.lineSprites, spriteEntry{
			y: y, x: p.oam[base+1], tile: p.oam[base+2], attr: p.oam[base+3], oamIndex: i,
		})
	}
	// Stable sort by X ascending.
	for i := 1; i < len(p.lineSprites); i++ {
		for j := i; j > 0 && p.lineSprites[j].x < p.lineSprites[j-1].x; j-- {
			p.lineSprites[j], p.lineSprites[j-1] = p.lineSprites[j-1], p.lineSprites[j]
		}
	}
}

func (p *PPU) setMode(m mode) {
	if p.currentMode() == m {
		return
	}
	p.stat = (p.stat &^ 0x03) | byte(m)
	switch m {
	case modeOAM:
		p.beginDrawingSetup()
		if p.stat&(1<<5) != 0 && p.req != nil {
			p.req(irqSTAT)
		}
	case modeDraw:
		p.beginDrawing()
	case modeHBlank:
		p.bgFIFO.clear()
		p.objFIFO.clear()
		if p.stat&(1<<3) != 0 && p.req != nil {
			p.req(irqSTAT)
		}
	}
}

func (p *PPU) beginDrawingSetup() {
	p.drawX = 0
	p.scxDiscard = int(p.scx) & 7
	p.fetcher.reset(false, p.bgTileMapBase(), int(p.scx)/8, p.ly, p.scy)
}

func (p *PPU) beginDrawing() {}

func (p *PPU) bgTileMapBase() uint16 {
	if p.lcdc&0x08 != 0 {
		return 0x9C00
	}
	return 0x9800
}

func (p *PPU) windowTileMapBase() uint16 {
	if p.lcdc&0x40 != 0 {
		return 0x9C00
	}
	return 0x9800
}

// stepDrawing drives the OAM->Draw->HBlank timing within a scanline. Mode 2
// lasts 80 dots; mode 3's length is this implementation's fetcher/FIFO
// cadence (206 dots at SCX=0, longer by the SCX discard, a simplification noted
// in DESIGN.md: real hardware's mode-3 length also varies with sprite and
// window fetch stalls, which this fetcher does not model as extra stalls).
func (p *PPU) stepDrawing() {
	switch p.currentMode() {
	case modeOAM:
		if p.dot+1 >= 80 {
			p.setMode(modeDraw)
		}
	case modeDraw:
		p.stepFetcher()
		p.stepLCDDriver()
		if p.drawX >= ScreenWidth {
			p.setMode(modeHBlank)
		}
	}
}

// stepFetcher advances the tile->data0->data1->idle->push state machine,
// clocked every other dot, and merges any sprite pixels for the current
// 8-pixel column into the object FIFO when the BG/window fetch lands on it.
func (p *PPU) stepFetcher() {
	p.fetcher.halfCycle = !p.fetcher.halfCycle
	if !p.fetcher.halfCycle {
		return
	}
	switch p.fetcher.state {
	case fetchTile:
		p.fetcher.loadTile(p)
		p.fetcher.state = fetchData0
	case fetchData0:
		p.fetcher.loadDataLow(p)
		p.fetcher.state = fetchData1
	case fetchData1:
		p.fetcher.loadDataHigh(p)
		p.fetcher.state = fetchIdle
	case fetchIdle:
		p.fetcher.state = fetchPush
	case fetchPush:
		if p.bgFIFO.len() == 0 {
			p.pushFetchedRow()
			p.mergeSprites()
			p.fetcher.advance()
			p.fetcher.state = fetchTile
		}
	}
}

func (p *PPU) pushFetchedRow() {
	for i := 0; i < 8; i++ {
		bit := 7 - i
		ci := ((p.fetcher.hi>>bit)&1)<<1 | ((p.fetcher.lo >> bit) & 1)
		p.bgFIFO.push(pixel{color: ci, palette: p.bgp})
	}
}

// mergeSprites fetches up to 3 sprites overlapping the tile column just
// pushed and overlays their pixels onto the object FIFO.
func (p *PPU) mergeSprites() {
	if p.lcdc&0x02 == 0 || len(p.lineSprites) == 0 {
		return
	}
	colStart := p.fetcher.mapXPixel()
	count := 0
	for _, s := range p.lineSprites {
		sx := int(s.x) - 8
		if sx < colStart-7 || sx > colStart+7 {
			continue
		}
		if count >= 3 {
			break
		}
		count++
		p.fetchSpriteRow(s, sx, colStart)
	}
}

func (p *PPU) fetchSpriteRow(s spriteEntry, sx, colStart int) {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	line := int(p.ly) - (int(s.y) - 16)
	if s.attr&0x40 != 0 { // Y-flip
		line = height - 1 - line
	}
	tile := s.tile
	if height == 16 {
		tile &^= 0x01
		if line >= 8 {
			tile |= 0x01
			line -= 8
		}
	}
	addr := 0x8000 + uint16(tile)*16 + uint16(line)*2
	lo := p.vram[addr-0x8000]
	hi := p.vram[addr+1-0x8000]
	xflip := s.attr&0x20 != 0
	for px := 0; px < 8; px++ {
		bit := 7 - px
		if xflip {
			bit = px
		}
		ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		screenX := sx + px
		idx := screenX - colStart + 8
		if idx < 0 || idx >= p.objFIFO.cap() {
			continue
		}
		if ci == 0 {
			continue // transparent sprite pixel never overwrites
		}
		px := pixel{color: ci, palette: p.objPalette(s), priority: s.attr&0x80 != 0}
		p.objFIFO.setAt(idx, px)
	}
}

func (p *PPU) objPalette(s spriteEntry) byte {
	if s.attr&0x10 != 0 {
		return p.obp1
	}
	return p.obp0
}

// stepLCDDriver dequeues one BG/window and one object pixel per dot,
// composites them, and writes the RGBA sample into the back buffer.
func (p *PPU) stepLCDDriver() {
	if p.scxDiscard > 0 {
		if _, ok := p.bgFIFO.pop(); ok {
			p.objFIFO.popDiscard()
			p.scxDiscard--
		}
		return
	}
	if p.windowTriggersNow() {
		p.bgFIFO.clear()
		p.fetcher.reset(true, p.windowTileMapBase(), 0, byte(p.windowLineCounter), 0)
		p.windowActiveLine = true
		return
	}
	bgPix, ok := p.bgFIFO.pop()
	if !ok {
		return
	}
	objPix, hasObj := p.objFIFO.pop()

	color := bgPix.color
	pal := bgPix.palette
	if hasObj && objPix.color != 0 && (!objPix.priority || bgPix.color == 0) {
		color = objPix.color
		pal = objPix.palette
	}
	shade := (pal >> (color * 2)) & 0x03
	p.writePixel(p.drawX, int(p.ly), shadeToRGBA(shade))
	p.drawX++
}

func (p *PPU) windowTriggersNow() bool {
	if p.windowActiveLine || p.lcdc&0x20 == 0 || p.fetcher.inWindow {
		return false
	}
	if p.wy > p.ly {
		return false
	}
	return p.drawX+7 >= int(p.wx) && p.wx <= 166
}

func (p *PPU) writePixel(x, y int, rgba [4]byte) {
	off := (y*ScreenWidth + x) * 4
	buf := &p.buffers[1-p.frontIdx]
	copy(buf[off:off+4], rgba[:])
}

func (p *PPU) flip() {
	p.frontIdx = 1 - p.frontIdx
}

var shadePalette = [4][4]byte{
	{0xE0, 0xF8, 0xD0, 0xFF},
	{0x88, 0xC0, 0x70, 0xFF},
	{0x34, 0x68, 0x56, 0xFF},
	{0x08, 0x18, 0x20, 0xFF},
}

func shadeToRGBA(shade byte) [4]byte { return shadePalette[shade&0x03] }

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if p.stat&(1<<6) != 0 && p.req != nil {
			p.req(irqSTAT)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// Framebuffer returns the front page (160*144*4 RGBA bytes), read-only.
func (p *PPU) Framebuffer() []byte { return p.buffers[p.frontIdx][:] }

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
func (p *PPU) LY() byte   { return p.ly }

// State is the gob-encodable snapshot of PPU state for save/load, mirroring
// the bus's busState pattern (internal/bus). Mid-line fetcher/FIFO progress
// is not preserved; a load always resumes at the start of the current line's
// fetch, which only risks a single redrawn scanline of visual glitch.
type State struct {
	VRAM [0x2000]byte
	OAM  [0xA0]byte

	LCDC, STAT      byte
	SCY, SCX        byte
	LY, LYC         byte
	BGP, OBP0, OBP1 byte
	WY, WX          byte

	Dot               int
	WindowLineCounter int
	WindowActiveLine  bool

	Buffers  [2][ScreenWidth * ScreenHeight * 4]byte
	FrontIdx int

	DMAReg    byte
	DMAActive bool
	DMASrc    uint16
	DMAIndex  int
	DMADelay  int
	DMACycle  int
}

func (p *PPU) SaveState() State {
	return State{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat,
		SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx,
		Dot: p.dot, WindowLineCounter: p.windowLineCounter, WindowActiveLine: p.windowActiveLine,
		Buffers: p.buffers, FrontIdx: p.frontIdx,
		DMAReg: p.dma.reg, DMAActive: p.dma.active, DMASrc: p.dma.src,
		DMAIndex: p.dma.index, DMADelay: p.dma.delay, DMACycle: p.dma.cycle,
	}
}

func (p *PPU) LoadState(s State) {
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat = s.LCDC, s.STAT
	p.scy, p.scx = s.SCY, s.SCX
	p.ly, p.lyc = s.LY, s.LYC
	p.bgp, p.obp0, p.obp1 = s.BGP, s.OBP0, s.OBP1
	p.wy, p.wx = s.WY, s.WX
	p.dot, p.windowLineCounter, p.windowActiveLine = s.Dot, s.WindowLineCounter, s.WindowActiveLine
	p.buffers, p.frontIdx = s.Buffers, s.FrontIdx
	p.dma.reg, p.dma.active, p.dma.src = s.DMAReg, s.DMAActive, s.DMASrc
	p.dma.index, p.dma.delay, p.dma.cycle = s.DMAIndex, s.DMADelay, s.DMACycle
	p.scanOAM()
	p.bgFIFO.clear()
	p.objFIFO.clear()
	p.beginDrawingSetup()
}
