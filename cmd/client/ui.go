package main

import (
	"sort"

	"github.com/google/uuid"
	runewidth "github.com/mattn/go-runewidth"
	termbox "github.com/nsf/termbox-go"
	"go.uber.org/zap"

	"tilerise/internal/client"
	"tilerise/internal/entity"
	"tilerise/internal/grid"
)

// worldScale converts engine world units into terminal cells: one tile step
// is two columns and one row on the diamond, roughly the 2:1 aspect of a
// terminal glyph.
const worldScale = 16

// ui renders the engine mirror and translates terminal input into intents.
type ui struct {
	eng    *client.Engine
	out    *wsConn
	logger *zap.SugaredLogger

	offX int
	offY int

	chatting bool
	input    []rune
}

func newUI(eng *client.Engine, out *wsConn, logger *zap.SugaredLogger) *ui {
	return &ui{eng: eng, out: out, logger: logger, offY: 2}
}

// handleEvent processes one termbox event; false means quit.
func (u *ui) handleEvent(ev termbox.Event) bool {
	switch ev.Type {
	case termbox.EventKey:
		return u.handleKey(ev)
	case termbox.EventMouse:
		if ev.Key == termbox.MouseLeft {
			u.handleClick(ev.MouseX, ev.MouseY)
		}
	case termbox.EventResize:
		termbox.Flush()
	}
	return true
}

func (u *ui) handleKey(ev termbox.Event) bool {
	if u.chatting {
		switch ev.Key {
		case termbox.KeyEnter:
			if len(u.input) > 0 {
				u.eng.SpeakIntent(string(u.input))
			}
			u.input = u.input[:0]
			u.chatting = false
		case termbox.KeyEsc:
			u.input = u.input[:0]
			u.chatting = false
		case termbox.KeyBackspace, termbox.KeyBackspace2:
			if len(u.input) > 0 {
				u.input = u.input[:len(u.input)-1]
			}
		case termbox.KeySpace:
			u.input = append(u.input, ' ')
		default:
			if ev.Ch != 0 {
				u.input = append(u.input, ev.Ch)
			}
		}
		return true
	}

	switch ev.Key {
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return false
	case termbox.KeyArrowUp:
		u.eng.MoveIntent(0, -1)
	case termbox.KeyArrowDown:
		u.eng.MoveIntent(0, 1)
	case termbox.KeyArrowLeft:
		u.eng.MoveIntent(-1, 0)
	case termbox.KeyArrowRight:
		u.eng.MoveIntent(1, 0)
	case termbox.KeyEnter:
		u.chatting = true
	}

	switch ev.Ch {
	case 'g':
		u.pickupNearby()
	case 'd':
		u.dropCoin()
	case 'q':
		return false
	}
	return true
}

// handleClick maps a terminal cell back onto the grid: focus interactables,
// walk everywhere else.
func (u *ui) handleClick(cx, cy int) {
	w, h := u.eng.GridSize()
	if w == 0 {
		return
	}
	g := grid.New(w, h)
	u.centerOffset(g)
	tile := g.WorldToTile(float64(cx-u.offX)*worldScale, float64(cy-u.offY)*worldScale)
	if !g.IsValidTile(tile) {
		return
	}

	for _, v := range u.eng.Snapshot() {
		if v.Self || v.Tile != tile {
			continue
		}
		u.eng.Focus(v.ID)
		if v.Kind == entity.KindItem {
			u.eng.PickupIntent(v.ID)
		}
		u.eng.TileClicked(tile.X, tile.Y)
		return
	}
	u.eng.Focus("")
	u.eng.TileClicked(tile.X, tile.Y)
}

// pickupNearby grabs the closest item within reach, if any.
func (u *ui) pickupNearby() {
	var self client.EntityView
	var items []client.EntityView
	for _, v := range u.eng.Snapshot() {
		switch {
		case v.Self:
			self = v
		case v.Kind == entity.KindItem:
			items = append(items, v)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return grid.Manhattan(items[i].Tile, self.Tile) < grid.Manhattan(items[j].Tile, self.Tile)
	})
	if len(items) > 0 {
		u.eng.PickupIntent(items[0].ID)
	}
}

func (u *ui) dropCoin() {
	for _, v := range u.eng.Snapshot() {
		if v.Self {
			u.eng.DropIntent(uuid.NewString(), v.Tile, entity.ItemInfo{Name: "coin", Class: "currency", Value: 1})
			return
		}
	}
}

func (u *ui) centerOffset(g *grid.Grid) {
	termW, _ := termbox.Size()
	// Tile (0, height-1) is the leftmost diamond corner.
	leftX, _ := g.TileToWorld(grid.Tile{X: 0, Y: g.Height() - 1})
	span := (g.Width() + g.Height()) * 2
	u.offX = -int(leftX)/worldScale + (termW-span)/2
	if u.offX < 1 {
		u.offX = 1
	}
}

func (u *ui) draw() {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	w, h := u.eng.GridSize()
	if w == 0 {
		drawText(1, 1, "connecting...", termbox.ColorWhite)
		termbox.Flush()
		return
	}
	g := grid.New(w, h)
	u.centerOffset(g)

	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < w; tx++ {
			cx, cy := u.cell(g, grid.Tile{X: tx, Y: ty})
			termbox.SetCell(cx, cy, '·', termbox.ColorDarkGray, termbox.ColorDefault)
		}
	}

	views := u.eng.Snapshot()
	sort.Slice(views, func(i, j int) bool { return views[i].WorldY < views[j].WorldY })
	for _, v := range views {
		cx := u.offX + int(v.WorldX)/worldScale
		cy := u.offY + int(v.WorldY)/worldScale
		ch, color := glyph(v)
		termbox.SetCell(cx, cy, ch, color, termbox.ColorDefault)
		if v.Chat != "" {
			drawText(cx+2, cy-1, v.Chat, termbox.ColorYellow)
		}
	}

	u.drawStatus()
	termbox.Flush()
}

func (u *ui) cell(g *grid.Grid, t grid.Tile) (int, int) {
	wx, wy := g.TileToWorld(t)
	return u.offX + int(wx)/worldScale, u.offY + int(wy)/worldScale
}

func (u *ui) drawStatus() {
	_, termH := termbox.Size()
	line := termH - 1

	if u.chatting {
		drawText(1, line, "say: "+string(u.input)+"_", termbox.ColorWhite)
		return
	}
	if _, label := u.eng.CurrentFocus(); label != "" {
		drawText(1, line-1, label, termbox.ColorCyan)
	}
	log := u.eng.ChatLog()
	if len(log) > 0 {
		last := log[len(log)-1]
		drawText(1, line, last.Name+": "+last.Text, termbox.ColorWhite)
	} else {
		drawText(1, line, "arrows move · click walks · enter chats · g picks up · d drops · q quits", termbox.ColorDarkGray)
	}
}

func glyph(v client.EntityView) (rune, termbox.Attribute) {
	switch {
	case v.Self:
		return '@', termbox.ColorGreen
	case v.Kind == entity.KindNPC:
		return 'N', termbox.ColorMagenta
	case v.Kind == entity.KindItem:
		return '*', termbox.ColorYellow
	default:
		return '@', termbox.ColorCyan
	}
}

func drawText(x, y int, s string, color termbox.Attribute) {
	for _, r := range s {
		termbox.SetCell(x, y, r, color, termbox.ColorDefault)
		x += runewidth.RuneWidth(r)
	}
}
