package notebook

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Cell
	}{
		{
			name: "blank lines separate cells",
			in:   "FROM alpine\n\nRUN apk add curl\nRUN curl --version\n\n\nENV A=b\n",
			want: []Cell{
				{Kind: KindCode, Source: "FROM alpine"},
				{Kind: KindCode, Source: "RUN apk add curl\nRUN curl --version"},
				{Kind: KindCode, Source: "ENV A=b"},
			},
		},
		{
			name: "explicit block keeps blank lines",
			in:   "FROM alpine\n#cellStart\nRUN a\n\nRUN b\n#cellEnd\nRUN c\n",
			want: []Cell{
				{Kind: KindCode, Source: "FROM alpine"},
				{Kind: KindCode, Source: "RUN a\n\nRUN b"},
				{Kind: KindCode, Source: "RUN c"},
			},
		},
		{
			name: "markdown and command comments",
			in:   "#md # Base image\n#md Alpine keeps it small\n\nFROM alpine\n\n#mg %install apt-get curl\n",
			want: []Cell{
				{Kind: KindMarkdown, Source: "# Base image\nAlpine keeps it small"},
				{Kind: KindCode, Source: "FROM alpine"},
				{Kind: KindCode, Source: "%install apt-get curl"},
			},
		},
		{
			name: "empty and unterminated blocks",
			in:   "#cellStart\n#cellEnd\nFROM alpine\n#cellStart\nRUN a\n\nRUN b",
			want: []Cell{
				{Kind: KindCode, Source: "FROM alpine"},
				{Kind: KindCode, Source: "RUN a\n\nRUN b"},
			},
		},
		{
			name: "windows line endings",
			in:   "FROM alpine\r\n\r\nRUN true\r\n",
			want: []Cell{
				{Kind: KindCode, Source: "FROM alpine"},
				{Kind: KindCode, Source: "RUN true"},
			},
		},
		{
			name: "nothing",
			in:   "\n \n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.in))
		})
	}
}

func TestCode(t *testing.T) {
	cells := Split("#md intro\n\nFROM alpine\n\nRUN true")
	assert.Equal(t, []string{"FROM alpine", "RUN true"}, Code(cells))
}

func TestToNotebook(t *testing.T) {
	nb := ToNotebook([]Cell{
		{Kind: KindMarkdown, Source: "intro"},
		{Kind: KindCode, Source: "FROM alpine\nRUN true"},
	})

	raw, err := nb.MarshalIndent()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 4, decoded["nbformat"])

	require.Len(t, nb.Cells, 2)
	assert.Equal(t, "markdown", nb.Cells[0].CellType)
	assert.Equal(t, []string{"intro"}, nb.Cells[0].Source)
	assert.Equal(t, []string{"FROM alpine\n", "RUN true"}, nb.Cells[1].Source)
	assert.Nil(t, nb.Cells[1].ExecutionCount)
	_, err = uuid.Parse(nb.Cells[1].ID)
	assert.NoError(t, err)
	assert.Equal(t, "docker", nb.Metadata.KernelSpec.Name)
}
