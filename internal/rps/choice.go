package rps

import (
	"fmt"
	"strings"
)

// Choice is a single move. The zero value is Rock.
type Choice uint8

const (
	Rock Choice = iota
	Paper
	Scissors
)

// Choices lists every valid move in table order.
var Choices = [...]Choice{Rock, Paper, Scissors}

var choiceNames = [...]string{"ROCK", "PAPER", "SCISSORS"}

func (c Choice) Valid() bool { return int(c) < len(choiceNames) }

func (c Choice) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Choice(%d)", uint8(c))
	}
	return choiceNames[c]
}

// ParseChoice accepts the upper- or lower-case move name.
func ParseChoice(s string) (Choice, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range choiceNames {
		if name == v {
			return Choice(i), nil
		}
	}
	return 0, invalidChoice()
}

func (c Choice) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, invalidChoice()
	}
	return []byte(choiceNames[c]), nil
}

func (c *Choice) UnmarshalText(b []byte) error {
	v, err := ParseChoice(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Outcome of comparing the first side's move against the second side's.
type Outcome uint8

const (
	Draw Outcome = iota
	FirstWins
	SecondWins
)

func (o Outcome) String() string {
	switch o {
	case FirstWins:
		return "FIRST_WINS"
	case SecondWins:
		return "SECOND_WINS"
	default:
		return "DRAW"
	}
}

// payoff[first][second]
var payoff = [3][3]Outcome{
	Rock:     {Rock: Draw, Paper: SecondWins, Scissors: FirstWins},
	Paper:    {Rock: FirstWins, Paper: Draw, Scissors: SecondWins},
	Scissors: {Rock: SecondWins, Paper: FirstWins, Scissors: Draw},
}

// Resolve compares two valid moves. Callers validate moves at the boundary
// (ParseChoice / UnmarshalText); an out-of-range value panics.
func Resolve(first, second Choice) Outcome {
	return payoff[first][second]
}
