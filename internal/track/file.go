package track

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/spatial/r2"
)

// Definition is one entry of a tracks file. Points holds one [left, right]
// pair of [x, y] coordinates per station.
type Definition struct {
	Name   string          `json:"name,omitempty"`
	Points [][2][2]float64 `json:"points"`
}

type tracksFile struct {
	Tracks []Definition `json:"tracks"`
}

func (d Definition) Stations() []Station {
	out := make([]Station, len(d.Points))
	for i, p := range d.Points {
		out[i] = Station{
			Left:  r2.Vec{X: p[0][0], Y: p[0][1]},
			Right: r2.Vec{X: p[1][0], Y: p[1][1]},
		}
	}
	return out
}

func (d Definition) Build() (*Track, error) {
	return FromPoints(d.Stations())
}

//go:embed tracks.json
var builtinTracks []byte

// DefaultTrack is the built-in track training uses when none is named.
const DefaultTrack = "bend"

// Builtin returns the tracks shipped with the package.
func Builtin() []Definition {
	defs, err := Parse(builtinTracks)
	if err != nil {
		panic(fmt.Sprintf("builtin tracks: %v", err))
	}
	return defs
}

// Load reads path, or returns the built-in tracks when path is empty.
func Load(path string) ([]Definition, error) {
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a JSON tracks file of the form {"tracks": [{"points": ...}]}.
// Unnamed tracks are named by their index.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tracks file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]Definition, error) {
	var file tracksFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode tracks file: %w", err)
	}
	if len(file.Tracks) == 0 {
		return nil, fmt.Errorf("tracks file has no tracks")
	}
	for i := range file.Tracks {
		if file.Tracks[i].Name == "" {
			file.Tracks[i].Name = fmt.Sprintf("track-%d", i)
		}
	}
	return file.Tracks, nil
}

// Select finds a track by name, falling back to a decimal index.
func Select(defs []Definition, key string) (Definition, error) {
	for _, d := range defs {
		if d.Name == key {
			return d, nil
		}
	}
	if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(defs) {
		return defs[idx], nil
	}
	return Definition{}, fmt.Errorf("track %q not found", key)
}
