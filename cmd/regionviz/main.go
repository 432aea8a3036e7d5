package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	termbox "github.com/nsf/termbox-go"

	"github.com/annelo/tileworld/internal/storage"
	util "github.com/annelo/tileworld/internal/storage/util"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Регион - 16x16 чанков
const regionChunks = 16

var (
	worldPath = flag.String("path", "./saves/default", "Директория мира (с подкаталогом regions)")
	regionX   = flag.Int("x", 0, "Координата региона X")
	regionY   = flag.Int("y", 0, "Координата региона Y")
	chunkX    = flag.Int("chunkX", 0, "Чанк для детального просмотра: X")
	chunkY    = flag.Int("chunkY", 0, "Чанк для детального просмотра: Y")
	seed      = flag.Int64("seed", 0, "Сид мира для подложки сгенерированных тайлов (0 = без подложки)")
)

// viewer хранит открытый регион и кеш прочитанных дельт
type viewer struct {
	rf      *storage.RegionFile
	rx, ry  int32
	deltas  map[wt.ChunkPosition]*storage.ChunkDelta
	gen     *worldgen.Generator
	curX    int
	curY    int
	details bool
}

func (v *viewer) delta(pos wt.ChunkPosition) *storage.ChunkDelta {
	if d, ok := v.deltas[pos]; ok {
		return d
	}
	var d *storage.ChunkDelta
	if v.rf.HasChunk(pos) {
		loaded, err := v.rf.GetChunk(pos)
		if err == nil {
			d = loaded
		}
	}
	v.deltas[pos] = d
	return d
}

func (v *viewer) cursorChunk() wt.ChunkPosition {
	return wt.ChunkPosition{X: v.rx*regionChunks + int32(v.curX), Y: v.ry*regionChunks + int32(v.curY)}
}

// densityCell - символ и цвет по числу измененных клеток чанка
func densityCell(n int) (rune, termbox.Attribute) {
	switch {
	case n == 0:
		return '·', termbox.ColorBlue
	case n < 8:
		return '░', termbox.ColorGreen
	case n < 64:
		return '▒', termbox.ColorYellow
	case n < 192:
		return '▓', termbox.ColorRed
	default:
		return '█', termbox.ColorMagenta
	}
}

func drawText(x, y int, text string, fg, bg termbox.Attribute) {
	i := 0
	for _, r := range text {
		termbox.SetCell(x+i, y, r, fg, bg)
		i++
	}
}

// drawOccupancy рисует сетку чанков региона: двойная ширина клетки для пропорций
func (v *viewer) drawOccupancy(top int) {
	for cy := 0; cy < regionChunks; cy++ {
		for cx := 0; cx < regionChunks; cx++ {
			pos := wt.ChunkPosition{X: v.rx*regionChunks + int32(cx), Y: v.ry*regionChunks + int32(cy)}
			ch, fg := ' ', termbox.ColorDefault
			if v.rf.HasChunk(pos) {
				n := 0
				if d := v.delta(pos); d != nil {
					n = d.Len()
				}
				ch, fg = densityCell(n)
			}
			bg := termbox.ColorDefault
			if cx == v.curX && cy == v.curY {
				bg = termbox.ColorWhite
			}
			termbox.SetCell(cx*2, top+cy, ch, fg, bg)
			termbox.SetCell(cx*2+1, top+cy, ch, fg, bg)
		}
	}
}

// drawChunk рисует клетки выбранного чанка: измененные выделены
func (v *viewer) drawChunk(left, top int) {
	pos := v.cursorChunk()
	d := v.delta(pos)
	var base *wt.Chunk
	if v.gen != nil {
		base = v.gen.GenerateChunk(pos)
	}
	for ly := 0; ly < wt.ChunkSize; ly++ {
		for lx := 0; lx < wt.ChunkSize; lx++ {
			ch, fg, bg := '.', termbox.ColorDefault, termbox.ColorDefault
			var cell wt.Cell
			known := false
			if base != nil {
				cell, known = base.At(lx, ly), true
			}
			if d != nil && d.IsCellModified(lx, ly) {
				cell, known = d.Cell(lx, ly, base), true
				bg = termbox.ColorDarkGray
			}
			if known {
				ch, fg = tileSymbol(cell.Top())
			}
			termbox.SetCell(left+lx, top+ly, ch, fg, bg)
		}
	}
}

func tileSymbol(id wt.TileID) (rune, termbox.Attribute) {
	switch id {
	case wt.TileWater:
		return '~', termbox.ColorBlue
	case wt.TileGrass, wt.TileIcyGrass:
		return '_', termbox.ColorGreen
	case wt.TileDirt, wt.TileIcyDirt:
		return ',', termbox.ColorYellow
	case wt.TileIce:
		return '=', termbox.ColorCyan
	case wt.TileTorch:
		return '!', termbox.ColorYellow | termbox.AttrBold
	case wt.TileSleepingBag:
		return 'b', termbox.ColorMagenta
	case wt.TileStone, wt.TileRock, wt.TileIcyRock:
		return '#', termbox.ColorWhite
	case wt.TileBush, wt.TileIcyBush:
		return '%', termbox.ColorGreen | termbox.AttrBold
	case wt.TileIronOre, wt.TileDiamondOre, wt.TileCoalOre:
		return '*', termbox.ColorRed
	case wt.TileChest, wt.TileFurnace, wt.TileWorkbench, wt.TileSign:
		return '&', termbox.ColorYellow | termbox.AttrBold
	default:
		return ' ', termbox.ColorDefault
	}
}

func (v *viewer) draw() {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	header := fmt.Sprintf("Region (%d,%d)  %d chunks  %d KB", v.rx, v.ry, len(v.rf.Chunks()), v.rf.Size()/1024)
	if v.rf.NeedsCompaction() {
		header += "  needs compaction"
	}
	drawText(0, 0, header, termbox.ColorYellow|termbox.AttrBold, termbox.ColorBlack)

	pos := v.cursorChunk()
	info := fmt.Sprintf("Chunk %s  key %s", pos, util.ChunkKey(pos))
	if d := v.delta(pos); d != nil {
		info += fmt.Sprintf("  modified %d  last %s", d.Len(), d.LastModified.Format(time.RFC822))
	} else {
		info += "  not stored"
	}
	drawText(0, 1, info, termbox.ColorWhite, termbox.ColorBlack)

	v.drawOccupancy(3)
	if v.details {
		v.drawChunk(regionChunks*2+4, 3)
	}
	drawText(0, regionChunks+4, "Стрелки - курсор, Enter - клетки чанка, q - выход", termbox.ColorWhite, termbox.ColorDefault)
	termbox.Flush()
}

func main() {
	flag.Parse()
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "regionviz"})

	regionsDir := filepath.Join(*worldPath, "regions")
	rx, ry := int32(*regionX), int32(*regionY)
	if flagSet("chunkX") || flagSet("chunkY") {
		rx, ry = util.RegionOf(wt.ChunkPosition{X: int32(*chunkX), Y: int32(*chunkY)})
	}
	// Просмотр не должен создавать пустой файл региона
	if _, err := os.Stat(filepath.Join(regionsDir, storage.RegionFileName(rx, ry))); err != nil {
		logger.Fatal("Файл региона не найден", "dir", regionsDir, "x", rx, "y", ry, "error", err)
	}

	rf, err := storage.NewRegionFile(regionsDir, rx, ry)
	if err != nil {
		logger.Fatal("Не удалось открыть регион", "error", err)
	}
	defer rf.Close()

	v := &viewer{rf: rf, rx: rx, ry: ry, deltas: make(map[wt.ChunkPosition]*storage.ChunkDelta)}
	if *seed != 0 {
		v.gen = worldgen.NewGenerator(*seed)
	}
	if flagSet("chunkX") || flagSet("chunkY") {
		v.curX = int(int32(*chunkX) - rx*regionChunks)
		v.curY = int(int32(*chunkY) - ry*regionChunks)
		v.details = true
	}

	if err := termbox.Init(); err != nil {
		logger.Fatal("termbox init error", "error", err)
	}
	defer termbox.Close()

	v.draw()
	for {
		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			switch ev.Key {
			case termbox.KeyEsc, termbox.KeyCtrlC:
				return
			case termbox.KeyArrowLeft:
				if v.curX > 0 {
					v.curX--
				}
			case termbox.KeyArrowRight:
				if v.curX < regionChunks-1 {
					v.curX++
				}
			case termbox.KeyArrowUp:
				if v.curY > 0 {
					v.curY--
				}
			case termbox.KeyArrowDown:
				if v.curY < regionChunks-1 {
					v.curY++
				}
			case termbox.KeyEnter:
				v.details = !v.details
			default:
				if ev.Ch == 'q' {
					return
				}
			}
			v.draw()
		case termbox.EventError:
			termbox.Close()
			logger.Error("termbox error", "error", ev.Err)
			return
		case termbox.EventResize:
			v.draw()
		}
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
