package storage

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"neurodrive/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// EncodeGenomeSet writes a gzip-compressed gob stream.
func EncodeGenomeSet(set model.GenomeSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteGenomeSet(&buf, set); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteGenomeSet(w io.Writer, set model.GenomeSet) error {
	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(set); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode genome set %s: %w", set.Name, err)
	}
	return zw.Close()
}

func DecodeGenomeSet(data []byte) (model.GenomeSet, error) {
	return ReadGenomeSet(bytes.NewReader(data))
}

func ReadGenomeSet(r io.Reader) (model.GenomeSet, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return model.GenomeSet{}, fmt.Errorf("open genome set: %w", err)
	}
	defer zr.Close()

	var set model.GenomeSet
	if err := gob.NewDecoder(zr).Decode(&set); err != nil {
		return model.GenomeSet{}, fmt.Errorf("decode genome set: %w", err)
	}
	if err := checkVersion(set.VersionedRecord); err != nil {
		return model.GenomeSet{}, err
	}
	for _, g := range set.Genomes {
		if err := checkVersion(g.VersionedRecord); err != nil {
			return model.GenomeSet{}, err
		}
	}
	return set, nil
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
