package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// LayerRecord stores weights row-major, one row of FanIn values per output neuron.
type LayerRecord struct {
	Activation string    `json:"activation"`
	FanIn      int       `json:"fan_in"`
	FanOut     int       `json:"fan_out"`
	Weights    []float64 `json:"weights"`
	Biases     []float64 `json:"biases"`
}

type GenomeRecord struct {
	VersionedRecord
	ID     string        `json:"id,omitempty"`
	Layers []LayerRecord `json:"layers"`
}

// GenomeSet is a named, ordered collection of genomes saved together.
type GenomeSet struct {
	VersionedRecord
	Name       string         `json:"name"`
	Generation int            `json:"generation"`
	Genomes    []GenomeRecord `json:"genomes"`
}

type GenerationDiagnostics struct {
	Generation    int            `json:"generation"`
	BestFitness   float64        `json:"best_fitness"`
	MeanFitness   float64        `json:"mean_fitness"`
	MinFitness    float64        `json:"min_fitness"`
	StdFitness    float64        `json:"std_fitness"`
	Evaluated     int            `json:"evaluated"`
	Parents       int            `json:"parents"`
	Children      int            `json:"children"`
	Mutated       int            `json:"mutated"`
	Reproductions map[string]int `json:"reproductions,omitempty"`
	Mutations     map[string]int `json:"mutations,omitempty"`
}

type LineageRecord struct {
	VersionedRecord
	GenomeID     string   `json:"genome_id"`
	ParentIDs    []string `json:"parent_ids,omitempty"`
	Generation   int      `json:"generation"`
	Reproduction string   `json:"reproduction,omitempty"`
	Mutation     string   `json:"mutation,omitempty"`
}

type TopGenomeRecord struct {
	Rank    int          `json:"rank"`
	Fitness float64      `json:"fitness"`
	Genome  GenomeRecord `json:"genome"`
}
