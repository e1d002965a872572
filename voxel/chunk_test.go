package voxel

import (
	"errors"
	"strings"
	"testing"
)

func TestZeroChunkIsAir(t *testing.T) {
	var c Chunk
	if got := c.Count(Air); got != Size {
		t.Errorf("Count(Air) = %d, want %d", got, Size)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestSize(t *testing.T) {
	var c Chunk
	if got := len(c.Bytes()); got != Size {
		t.Errorf("len(Bytes()) = %d, want %d", got, Size)
	}
	if Size%Alignment != 0 {
		t.Errorf("Size %d is not a multiple of Alignment %d", Size, Alignment)
	}
}

func TestSetAt(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z int
		want    State
	}{
		{"origin", 0, 0, 0, Sand},
		{"above origin", 0, 1, 0, Sand},
		{"far corner", Width - 1, Height - 1, Depth - 1, Sand},
		{"out of bounds x", Width, 0, 0, Air},
		{"negative y", 0, -1, 0, Air},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Chunk
			c.Set(tt.x, tt.y, tt.z, Sand)
			if got := c.At(tt.x, tt.y, tt.z); got != tt.want {
				t.Errorf("At(%d,%d,%d) = %v, want %v", tt.x, tt.y, tt.z, got, tt.want)
			}
			wantCount := 0
			if tt.want == Sand {
				wantCount = 1
			}
			if got := c.Count(Sand); got != wantCount {
				t.Errorf("Count(Sand) = %d, want %d", got, wantCount)
			}
		})
	}
}

func TestBytesLayout(t *testing.T) {
	var c Chunk
	c.Set(0, 1, 0, Sand)
	c.Set(3, 2, 1, Sand)

	b := c.Bytes()
	for i, v := range b {
		want := uint8(Air)
		if i == Index(0, 1, 0) || i == Index(3, 2, 1) {
			want = uint8(Sand)
		}
		if v != want {
			t.Errorf("byte %d = %d, want %d", i, v, want)
		}
	}
	if Index(0, 1, 0) != 16 {
		t.Errorf("Index(0,1,0) = %d, want 16", Index(0, 1, 0))
	}
	if Index(3, 2, 1) != 39 {
		t.Errorf("Index(3,2,1) = %d, want 39", Index(3, 2, 1))
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	var c Chunk
	c.Set(0, 1, 0, Sand)
	c.Set(2, 3, 3, Sand)

	got, err := FromBytes(c.Bytes())
	if err != nil {
		t.Fatalf("FromBytes() error = %v", err)
	}
	if got != c {
		t.Errorf("FromBytes(Bytes()) = %v, want %v", got, c)
	}
}

func TestFromBytesErrors(t *testing.T) {
	invalid := make([]byte, Size)
	invalid[Index(1, 2, 3)] = 7

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrSize},
		{"short", make([]byte, Size-1), ErrSize},
		{"long", make([]byte, Size+Alignment), ErrSize},
		{"invalid state", invalid, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBytes(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("FromBytes() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrIntegrity) {
				t.Errorf("FromBytes() error = %v, want wrapping ErrIntegrity", err)
			}
		})
	}
}

func TestValidateReportsPosition(t *testing.T) {
	var c Chunk
	c.Voxels[2][3][1] = 200
	err := c.Validate()
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Validate() = %v, want ErrInvalidState", err)
	}
	if !strings.Contains(err.Error(), "(1,2,3)") {
		t.Errorf("Validate() = %q, want position (1,2,3)", err)
	}
}

func TestSum64(t *testing.T) {
	var a, b Chunk
	if a.Sum64() != b.Sum64() {
		t.Error("equal chunks must hash equal")
	}
	b.Set(0, 1, 0, Sand)
	if a.Sum64() == b.Sum64() {
		t.Error("different chunks hashed equal")
	}
}

func TestFill(t *testing.T) {
	var c Chunk
	c.Fill(Sand)
	if got := c.Count(Sand); got != Size {
		t.Errorf("Count(Sand) = %d, want %d", got, Size)
	}
}

func TestString(t *testing.T) {
	var c Chunk
	c.Set(0, 1, 0, Sand)
	c.Voxels[3][0][0] = 9

	s := c.String()
	lines := strings.Split(s, "\n")
	if len(lines) != Height {
		t.Fatalf("String() has %d lines, want %d:\n%s", len(lines), Height, s)
	}
	if lines[0] != "y=3 ?... .... .... ...." {
		t.Errorf("top layer = %q", lines[0])
	}
	if lines[2] != "y=1 #... .... .... ...." {
		t.Errorf("layer 1 = %q", lines[2])
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Air, "Air"},
		{Sand, "Sand"},
		{State(5), "State(5)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", uint8(tt.s), got, tt.want)
		}
	}
}
