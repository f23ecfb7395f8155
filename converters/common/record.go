package common

// Record is one row of a speech corpus export. Every attribute is nullable;
// a nil pointer is a null cell in the source file and is stored as SQL NULL.
type Record struct {
	Language   *string `parquet:"language"`
	SpeakerID  *string `parquet:"speaker_id"`
	PromptID   *string `parquet:"prompt_id"`
	Prompt     *string `parquet:"prompt"`
	SegmentID  *string `parquet:"segment_id"`
	RawText    *string `parquet:"raw_text"`
	ISO6393    *string `parquet:"iso_639_3"`
	Glottocode *string `parquet:"glottocode"`
	ISO15924   *string `parquet:"iso_15924"`
}

// Field maps a destination column to the record attribute it is copied from.
type Field struct {
	Column string
	Value  func(r *Record) *string
}

// Fields is the column order used for DDL, insert binding and SQL export.
// Column names must match the parquet tags on Record.
var Fields = []Field{
	{"language", func(r *Record) *string { return r.Language }},
	{"speaker_id", func(r *Record) *string { return r.SpeakerID }},
	{"prompt_id", func(r *Record) *string { return r.PromptID }},
	{"prompt", func(r *Record) *string { return r.Prompt }},
	{"segment_id", func(r *Record) *string { return r.SegmentID }},
	{"raw_text", func(r *Record) *string { return r.RawText }},
	{"iso_639_3", func(r *Record) *string { return r.ISO6393 }},
	{"glottocode", func(r *Record) *string { return r.Glottocode }},
	{"iso_15924", func(r *Record) *string { return r.ISO15924 }},
}

// RecordColumns returns the record column names in binding order.
func RecordColumns() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// Values returns the record as bind arguments. Null attributes become untyped
// nil so the driver binds NULL rather than an empty string.
func (r *Record) Values() []interface{} {
	vals := make([]interface{}, len(Fields))
	for i, f := range Fields {
		if v := f.Value(r); v != nil {
			vals[i] = *v
		}
	}
	return vals
}

// Str returns a pointer to s. Handy for building records by hand.
func Str(s string) *string {
	return &s
}
