package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"neurodrive/internal/model"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

func ToRecord(n *Network, id string) model.GenomeRecord {
	rec := model.GenomeRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: SupportedSchemaVersion, CodecVersion: SupportedCodecVersion},
		ID:              id,
		Layers:          make([]model.LayerRecord, len(n.layers)),
	}
	for i, l := range n.layers {
		weights := make([]float64, 0, l.FanIn()*l.FanOut())
		for r := 0; r < l.FanOut(); r++ {
			weights = append(weights, mat.Row(nil, r, l.Weights)...)
		}
		rec.Layers[i] = model.LayerRecord{
			Activation: l.Activation,
			FanIn:      l.FanIn(),
			FanOut:     l.FanOut(),
			Weights:    weights,
			Biases:     mat.Col(nil, 0, l.Biases),
		}
	}
	return rec
}

func FromRecord(rec model.GenomeRecord) (*Network, error) {
	layers := make([]Layer, len(rec.Layers))
	for i, lr := range rec.Layers {
		if lr.FanIn <= 0 || lr.FanOut <= 0 || len(lr.Weights) != lr.FanIn*lr.FanOut {
			return nil, fmt.Errorf("%w: layer %d has %d weights for %dx%d", ErrLayerShape, i, len(lr.Weights), lr.FanOut, lr.FanIn)
		}
		if len(lr.Biases) != lr.FanOut {
			return nil, fmt.Errorf("%w: layer %d has %d biases for %d neurons", ErrLayerShape, i, len(lr.Biases), lr.FanOut)
		}
		layer, err := NewLayer(
			mat.NewDense(lr.FanOut, lr.FanIn, append([]float64(nil), lr.Weights...)),
			mat.NewVecDense(lr.FanOut, append([]float64(nil), lr.Biases...)),
			lr.Activation,
		)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = layer
	}
	return New(layers...)
}
