package datatable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		name  string
		field string
		rows  []Row
		want  ColumnType
	}{
		{
			name:  "date keyword",
			field: "job_created_at",
			rows:  []Row{{"job_created_at": "whatever"}},
			want:  TypeDate,
		},
		{
			name:  "portuguese date keyword",
			field: "data_vencimento",
			want:  TypeDate,
		},
		{
			name:  "numeric keyword",
			field: "job_id",
			rows:  []Row{{"job_id": "abc"}},
			want:  TypeNumeric,
		},
		{
			name:  "keyword match is case-insensitive",
			field: "ValorPago",
			want:  TypeNumeric,
		},
		{
			name:  "sampled dates",
			field: "nome",
			rows:  []Row{{"nome": "12/03/2024"}, {"nome": "01/01/2020"}, {"nome": nil}},
			want:  TypeDate,
		},
		{
			name:  "sampled numbers",
			field: "amount",
			rows:  []Row{{"amount": 1}, {"amount": "2.5"}, {"amount": 3.25}},
			want:  TypeNumeric,
		},
		{
			name:  "mixed samples fall back to text",
			field: "nome",
			rows:  []Row{{"nome": "Ana"}, {"nome": "12"}},
			want:  TypeText,
		},
		{
			name:  "timestamps are not short dates and parse by leading digits",
			field: "nome",
			rows:  []Row{{"nome": "12/03/2024 10:00:00"}},
			want:  TypeNumeric,
		},
		{
			name:  "no samples",
			field: "nome",
			rows:  []Row{{"nome": nil}, {"other": "x"}},
			want:  TypeText,
		},
	}

	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.field, tt.rows))
		})
	}
}

func TestKeywordClassifierSampleLimit(t *testing.T) {
	rows := make([]Row, 0, 11)
	for i := 0; i < DefaultSampleSize; i++ {
		rows = append(rows, Row{"amount": i})
	}
	rows = append(rows, Row{"amount": "not a number"})

	assert.Equal(t, TypeNumeric, NewKeywordClassifier().Classify("amount", rows))

	c := NewKeywordClassifier()
	c.SampleSize = 20
	assert.Equal(t, TypeText, c.Classify("amount", rows))
}

func TestKeywordClassifierOverride(t *testing.T) {
	c := NewKeywordClassifier().Override("job_user_id", TypeText)

	assert.Equal(t, TypeText, c.Classify("job_user_id", nil))
	assert.Equal(t, TypeNumeric, c.Classify("job_id", nil))
}

func TestClassifierFunc(t *testing.T) {
	var c Classifier = ClassifierFunc(func(string, []Row) ColumnType { return TypeDate })
	assert.Equal(t, TypeDate, c.Classify("anything", nil))
}
