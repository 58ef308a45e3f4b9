package observer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const clearLineSequence = "\r\033[K"

// ConsoleSink renders a live status line. On a terminal the line is redrawn
// in place; otherwise one line is printed per non-sample event.
type ConsoleSink struct {
	w           io.Writer
	interactive bool

	heartRate  int
	battery    int
	sampleRate float64
	state      string
	device     string
	samples    uint64

	hrColor    *color.Color
	rateColor  *color.Color
	stateColor *color.Color
}

// NewConsoleSink creates a ConsoleSink writing to w. Colors follow fatih/color's
// NoColor detection unless w is not a terminal.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	s := &ConsoleSink{
		w:          w,
		heartRate:  -1,
		battery:    -1,
		hrColor:    color.New(color.FgRed, color.Bold),
		rateColor:  color.New(color.FgCyan),
		stateColor: color.New(color.Bold),
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.interactive = true
	} else {
		for _, c := range []*color.Color{s.hrColor, s.rateColor, s.stateColor} {
			c.DisableColor()
		}
	}
	return s
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Handle(ev Event) error {
	switch v := ev.Value.(type) {
	case []int32:
		s.samples += uint64(len(v))
		return nil
	case DeviceInfo:
		s.device = strings.TrimSpace(v.Manufacturer + " " + v.Model)
	case float64:
		s.sampleRate = v
	case string:
		s.state = v
	case int:
		switch ev.Kind {
		case KindHeartRate:
			s.heartRate = v
		case KindBattery:
			s.battery = v
		}
	}

	var err error
	if s.interactive {
		_, err = fmt.Fprint(s.w, clearLineSequence+s.Line())
	} else {
		_, err = fmt.Fprintln(s.w, s.Line())
	}
	return err
}

// Line renders the current status.
func (s *ConsoleSink) Line() string {
	var parts []string
	if s.device != "" {
		parts = append(parts, s.device)
	}
	if s.heartRate >= 0 {
		parts = append(parts, s.hrColor.Sprintf("HR %d bpm", s.heartRate))
	}
	if s.battery >= 0 {
		parts = append(parts, s.batteryColor().Sprintf("battery %d%%", s.battery))
	}
	parts = append(parts,
		s.rateColor.Sprintf("ecg %.1f Hz", s.sampleRate),
		fmt.Sprintf("%d samples", s.samples),
	)
	if s.state != "" {
		parts = append(parts, s.stateColor.Sprintf("[%s]", s.state))
	}
	return strings.Join(parts, " | ")
}

func (s *ConsoleSink) batteryColor() *color.Color {
	var c *color.Color
	switch {
	case s.battery <= 15:
		c = color.New(color.FgRed)
	case s.battery <= 40:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgGreen)
	}
	if !s.interactive {
		c.DisableColor()
	}
	return c
}

func (s *ConsoleSink) Close() error {
	if s.interactive {
		_, err := fmt.Fprintln(s.w)
		return err
	}
	return nil
}
