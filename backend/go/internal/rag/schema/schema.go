package schema

const (
	// MetadataKeyFileName is the key for the source file name.
	MetadataKeyFileName = "file_name"
	// MetadataKeyPageLabel is the key for the page number or sheet name from the source document.
	MetadataKeyPageLabel = "page_label"
	// MetadataKeySourceURL is set by the web loader.
	MetadataKeySourceURL = "source_url"
	// MetadataKeyOriginalDocID links a chunk to the loaded page it was cut from.
	MetadataKeyOriginalDocID = "original_doc_id"
	// MetadataKeyChunkNumber is the 1-based position of a chunk within its document.
	MetadataKeyChunkNumber = "chunk_number"
	// MetadataKeyCaseID, MetadataKeyDocumentID and MetadataKeyOwnerID scope a chunk to its case document.
	MetadataKeyCaseID     = "case_id"
	MetadataKeyDocumentID = "document_id"
	MetadataKeyOwnerID    = "owner_id"
	// MetadataKeyScore is filled by vector search.
	MetadataKeyScore = "score"
)

// Document is the central data structure representing a piece of text and its associated data.
// It is the primary data carrier throughout the ingestion and retrieval pipelines.
type Document struct {
	// ID is the unique identifier for this document chunk.
	ID string `json:"id"`

	// Text is the string content of the document chunk.
	Text string `json:"text"`

	// Embedding is the vector representation of the text.
	Embedding []float32 `json:"-"`

	// Metadata holds arbitrary data about the document such as file_name and page_label.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetaString returns a metadata value as a string, empty when missing.
func (d *Document) MetaString(key string) string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// CopyMetadata returns a shallow copy of the metadata map.
func CopyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}
