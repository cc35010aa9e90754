// Package fen reads the fields of a Forsyth-Edwards Notation string. It does
// not check that the position is legal.
package fen

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

type Color byte

const (
	White Color = iota + 1
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "w"
	case Black:
		return "b"
	default:
		return "-"
	}
}

// Position holds the six FEN fields.
type Position struct {
	Placement string
	Turn      Color
	Castling  string
	EnPassant string
	Halfmove  int
	Fullmove  int
}

// Parse splits and checks a six-field FEN string.
func Parse(s string) (*Position, error) {
	parts := strings.Fields(s)
	if len(parts) != 6 {
		return nil, fmt.Errorf("invalid FEN: expected 6 parts, got %d", len(parts))
	}

	if err := checkPlacement(parts[0]); err != nil {
		return nil, err
	}

	p := &Position{
		Placement: parts[0],
		Castling:  parts[2],
		EnPassant: parts[3],
	}

	switch parts[1] {
	case "w":
		p.Turn = White
	case "b":
		p.Turn = Black
	default:
		return nil, fmt.Errorf("invalid FEN: turn must be 'w' or 'b'")
	}

	if !validCastling(parts[2]) {
		return nil, fmt.Errorf("invalid FEN: castling field %q", parts[2])
	}
	if !validEnPassant(parts[3]) {
		return nil, fmt.Errorf("invalid FEN: en passant field %q", parts[3])
	}

	var err error
	if p.Halfmove, err = strconv.Atoi(parts[4]); err != nil || p.Halfmove < 0 {
		return nil, fmt.Errorf("invalid FEN: halfmove counter")
	}
	if p.Fullmove, err = strconv.Atoi(parts[5]); err != nil || p.Fullmove < 1 {
		return nil, fmt.Errorf("invalid FEN: fullmove counter")
	}

	return p, nil
}

func checkPlacement(placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("invalid FEN: expected 8 ranks")
	}
	for r, rank := range ranks {
		file := 0
		for _, ch := range rank {
			switch {
			case ch >= '1' && ch <= '8':
				file += int(ch - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", ch):
				file++
			default:
				return fmt.Errorf("invalid FEN: bad piece %q in rank %d", ch, 8-r)
			}
			if file > 8 {
				return fmt.Errorf("invalid FEN: too many pieces in rank %d", 8-r)
			}
		}
		if file != 8 {
			return fmt.Errorf("invalid FEN: rank %d has %d files", 8-r, file)
		}
	}
	return nil
}

func validCastling(s string) bool {
	if s == "-" {
		return true
	}
	if s == "" || len(s) > 4 {
		return false
	}
	for _, ch := range s {
		if !strings.ContainsRune("KQkq", ch) {
			return false
		}
	}
	return true
}

func validEnPassant(s string) bool {
	if s == "-" {
		return true
	}
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && (s[1] == '3' || s[1] == '6')
}

// SideToMove reads only the turn field, so it also works on FEN text that
// would not pass Parse. Anything but an explicit "b" is White.
func SideToMove(s string) Color {
	parts := strings.Fields(s)
	if len(parts) > 1 && parts[1] == "b" {
		return Black
	}
	return White
}

// SameBoard reports whether two FEN strings describe the same position:
// placement, turn, castling rights and en passant square. Move clocks are
// ignored because engines re-derive them.
func SameBoard(a, b string) bool {
	pa, err := Parse(a)
	if err != nil {
		return false
	}
	pb, err := Parse(b)
	if err != nil {
		return false
	}
	return pa.Placement == pb.Placement &&
		pa.Turn == pb.Turn &&
		pa.Castling == pb.Castling &&
		pa.EnPassant == pb.EnPassant
}

// PieceAt returns the piece letter on a square such as "e4", or 0.
func (p *Position) PieceAt(square string) byte {
	if len(square) != 2 {
		return 0
	}
	if square[0] < 'a' || square[0] > 'h' || square[1] < '1' || square[1] > '8' {
		return 0
	}
	rank := strings.Split(p.Placement, "/")['8'-square[1]]
	file := int(square[0] - 'a')
	col := 0
	for i := 0; i < len(rank); i++ {
		ch := rank[i]
		if ch >= '1' && ch <= '8' {
			col += int(ch - '0')
			if col > file {
				return 0
			}
			continue
		}
		if col == file {
			return ch
		}
		col++
	}
	return 0
}

// String reassembles the FEN text.
func (p *Position) String() string {
	return fmt.Sprintf("%s %s %s %s %d %d",
		p.Placement, p.Turn, p.Castling, p.EnPassant, p.Halfmove, p.Fullmove)
}
