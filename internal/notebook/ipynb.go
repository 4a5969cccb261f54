package notebook

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Notebook is the nbformat 4 document written for a split Dockerfile
type Notebook struct {
	Cells         []NotebookCell `json:"cells"`
	Metadata      Metadata       `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type NotebookCell struct {
	CellType       string         `json:"cell_type"`
	ExecutionCount *int           `json:"execution_count"`
	ID             string         `json:"id"`
	Metadata       map[string]any `json:"metadata"`
	Outputs        []any          `json:"outputs"`
	Source         []string       `json:"source"`
}

type Metadata struct {
	KernelSpec   KernelSpec   `json:"kernelspec"`
	LanguageInfo LanguageInfo `json:"language_info"`
}

type KernelSpec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

type LanguageInfo struct {
	FileExtension string `json:"file_extension"`
	MimeType      string `json:"mimetype"`
	Name          string `json:"name"`
}

// ToNotebook wraps cells in an nbformat document for the docker kernel
func ToNotebook(cells []Cell) Notebook {
	nb := Notebook{
		Cells: make([]NotebookCell, 0, len(cells)),
		Metadata: Metadata{
			KernelSpec: KernelSpec{DisplayName: "Dockerfile", Language: "text", Name: "docker"},
			LanguageInfo: LanguageInfo{
				FileExtension: ".dockerfile",
				MimeType:      "text/x-dockerfile-config",
				Name:          "docker",
			},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
	for _, c := range cells {
		nb.Cells = append(nb.Cells, NotebookCell{
			CellType: string(c.Kind),
			ID:       uuid.NewString(),
			Metadata: map[string]any{},
			Outputs:  []any{},
			Source:   sourceLines(c.Source),
		})
	}
	return nb
}

// MarshalIndent renders the notebook as .ipynb JSON
func (nb Notebook) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(nb, "", " ")
}

// sourceLines keeps the trailing newline on every line but the last
func sourceLines(source string) []string {
	lines := strings.SplitAfter(source, "\n")
	if last := len(lines) - 1; last > 0 && lines[last] == "" {
		lines = lines[:last]
	}
	return lines
}
