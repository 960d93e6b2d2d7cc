package waveform

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Surface is a 2D drawing area in logical units with the origin at the top left.
type Surface interface {
	Size() (width, height float64)
	Clear()
	FillRect(x, y, w, h float64, color string)
}

const cellGlyph = "█"

// Canvas rasterizes a logical surface onto a fixed grid of terminal cells.
//
// A cell is painted when its center falls inside a filled rectangle.
type Canvas struct {
	mu     sync.Mutex
	width  float64
	height float64
	cols   int
	rows   int
	cells  []string
	styles map[string]lipgloss.Style
}

// NewCanvas builds a width x height logical surface shown as cols x rows cells.
func NewCanvas(width, height float64, cols, rows int) *Canvas {
	return &Canvas{
		width:  width,
		height: height,
		cols:   cols,
		rows:   rows,
		cells:  make([]string, cols*rows),
		styles: make(map[string]lipgloss.Style),
	}
}

func (c *Canvas) Size() (float64, float64) {
	return c.width, c.height
}

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cells)
}

func (c *Canvas) FillRect(x, y, w, h float64, color string) {
	if w <= 0 || h <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cellW := c.width / float64(c.cols)
	cellH := c.height / float64(c.rows)
	for row := 0; row < c.rows; row++ {
		cy := (float64(row) + 0.5) * cellH
		if cy < y || cy >= y+h {
			continue
		}
		for col := 0; col < c.cols; col++ {
			cx := (float64(col) + 0.5) * cellW
			if cx < x || cx >= x+w {
				continue
			}
			c.cells[row*c.cols+col] = color
		}
	}
}

// Cell returns the color painted at col,row, or "" when blank.
func (c *Canvas) Cell(col, row int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col < 0 || col >= c.cols || row < 0 || row >= c.rows {
		return ""
	}
	return c.cells[row*c.cols+col]
}

// Painted counts non-blank cells.
func (c *Canvas) Painted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cell := range c.cells {
		if cell != "" {
			n++
		}
	}
	return n
}

// View renders the grid, one line per row.
func (c *Canvas) View() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for row := 0; row < c.rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		for col := 0; col < c.cols; col++ {
			color := c.cells[row*c.cols+col]
			if color == "" {
				b.WriteByte(' ')
				continue
			}
			b.WriteString(c.style(color).Render(cellGlyph))
		}
	}
	return b.String()
}

func (c *Canvas) style(color string) lipgloss.Style {
	if s, ok := c.styles[color]; ok {
		return s
	}
	s := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	c.styles[color] = s
	return s
}
