package cardvalidate

import "fmt"

// Level is the severity of a validation message.
type Level int

const (
	// LevelInfo marks a problem that was repaired.
	LevelInfo Level = 1
	// LevelWarning marks a problem that was left alone.
	LevelWarning Level = 2
	// LevelFatal marks a problem that rejects the card.
	LevelFatal Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Message is one validation finding.
type Message struct {
	Level    Level
	Property string
	Text     string
}

func (m Message) String() string {
	if m.Property == "" {
		return fmt.Sprintf("[%s] %s", m.Level, m.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", m.Level, m.Property, m.Text)
}

func repairedLevel(repair bool) Level {
	if repair {
		return LevelInfo
	}
	return LevelFatal
}
