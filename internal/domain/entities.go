package domain

// Format identifies how a raw document's text is extracted.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// RawDocument is one ingested file. It lives only until it is chunked.
type RawDocument struct {
	Content    string
	SourcePath string
	Filename   string
	Format     Format
	ByteSize   int64
}

// Chunk is a bounded slice of a document's normalized text and the unit of
// embedding and retrieval.
type Chunk struct {
	Content        string `json:"content"`
	SourceFilename string `json:"filename"`
	SourcePath     string `json:"source"`
	ChunkID        string `json:"chunk_id"`
	ChunkIndex     int    `json:"chunk_index"`
	TotalChunks    int    `json:"total_chunks"`
}

// IndexEntry is a chunk together with its embedding at a fixed index position.
type IndexEntry struct {
	Position int
	Chunk    Chunk
	Vector   []float32
}

// RetrievalResult is one ranked search hit.
type RetrievalResult struct {
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
	Filename string  `json:"filename"`
	ChunkID  string  `json:"chunk_id"`
	// Distance is set only by the remote index, which ranks by L2 distance.
	Distance float64 `json:"distance,omitempty"`
}

type Source struct {
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// QueryAnswer is the externally visible result of one query.
type QueryAnswer struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	Query      string   `json:"query"`
}

type UploadResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ChunksAdded  int    `json:"chunks_added"`
	DocumentName string `json:"document_name"`
}

// IndexStats reports the health of the local embedding index.
type IndexStats struct {
	TotalVectors       int    `json:"total_vectors"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	ModelName          string `json:"model_name"`
	IndexExists        bool   `json:"index_exists"`
	TotalDocuments     int    `json:"total_documents"`
}

type EngineStatus struct {
	EnhancedMode      bool       `json:"enhanced_mode"`
	GenerationEnabled bool       `json:"generation_enabled"`
	Index             IndexStats `json:"index"`
	RemoteVectors     int64      `json:"remote_vectors,omitempty"`
}
