package fen

import "testing"

func TestParse(t *testing.T) {
	p, err := Parse("r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b Kq e3 2 3")
	if err != nil {
		t.Fatal(err)
	}
	if p.Turn != Black || p.Castling != "Kq" || p.EnPassant != "e3" || p.Halfmove != 2 || p.Fullmove != 3 {
		t.Fatalf("got %+v", p)
	}
	if got := p.PieceAt("c6"); got != 'n' {
		t.Errorf("PieceAt(c6) = %q", got)
	}
	if got := p.PieceAt("e4"); got != 'P' {
		t.Errorf("PieceAt(e4) = %q", got)
	}
	if got := p.PieceAt("e5"); got != 'p' {
		t.Errorf("PieceAt(e5) = %q", got)
	}
	if got := p.PieceAt("d4"); got != 0 {
		t.Errorf("PieceAt(d4) = %q", got)
	}
	if got := p.PieceAt("z9"); got != 0 {
		t.Errorf("PieceAt(z9) = %q", got)
	}
	if p.String() != "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b Kq e3 2 3" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestParseRejects(t *testing.T) {
	bad := []string{
		"",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",
		"rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/7/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnx/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkqK - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KX - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq e4 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - -1 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 0",
	}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded", s)
		}
	}
}

func TestSideToMove(t *testing.T) {
	tests := []struct {
		in   string
		want Color
	}{
		{StartingFEN, White},
		{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", Black},
		{"garbage b", Black},
		{"", White},
		{"only-placement", White},
	}
	for _, tt := range tests {
		if got := SideToMove(tt.in); got != tt.want {
			t.Errorf("SideToMove(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSameBoard(t *testing.T) {
	if !SameBoard(StartingFEN, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 7 12") {
		t.Error("clocks should be ignored")
	}
	if SameBoard(StartingFEN, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1") {
		t.Error("turn should matter")
	}
	if SameBoard(StartingFEN, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w Kkq - 0 1") {
		t.Error("castling should matter")
	}
	if SameBoard(StartingFEN, "not a fen") {
		t.Error("invalid input compared equal")
	}
}
