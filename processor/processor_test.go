package processor_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bpo-assigner/config"
	customerrors "bpo-assigner/errors"
	"bpo-assigner/processor"
)

var monday = time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)

const header = "Delv Ship-To Party,Delv Ship-To Name,Esquema,Motivo,Día de recolección\n"

func roster(rows ...string) string {
	return header + strings.Join(rows, "\n") + "\n"
}

func generic(n int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf("%d,Walmart %d,Regular,,AD", 1000+i, i)
	}
	return rows
}

func process(t *testing.T, req processor.Request) (*processor.Output, error) {
	t.Helper()
	if req.InputName == "" {
		req.InputName = "programa.csv"
	}
	if req.RunDate.IsZero() {
		req.RunDate = monday
	}
	return processor.New(config.DefaultConfig(), nil).Process(req)
}

func TestProcess(t *testing.T) {
	rows := append(generic(9), "2000,OXXO Centro,Dedicado,,OD", "2001,La Comer,Regular,Reprogramación,45754")

	out, err := process(t, processor.Request{Input: strings.NewReader(roster(rows...))})
	require.NoError(t, err)

	assert.Len(t, out.Result.Records, 11)
	assert.NotEmpty(t, out.Result.RunID)
	assert.Empty(t, out.Result.Warnings)

	oxxo := out.Result.Records[9]
	assert.Equal(t, "Melissa Florian", oxxo.AssignedAgent)
	assert.Equal(t, "8/4/2025", oxxo.CollectionDate)
	assert.Equal(t, "Julio de Leon", out.Result.Records[10].AssignedAgent)
	assert.Equal(t, "7/4/2025", out.Result.Records[10].CollectionDate)

	require.Len(t, out.Artifacts, 2)
	assert.Equal(t, "Programa_Procesado_07-04-2025.xlsx", out.Artifacts[0].Name)
	assert.Equal(t, "Programa_Procesado_07-04-2025.csv", out.Artifacts[1].Name)

	csvText := string(out.Artifacts[1].Data)
	assert.True(t, strings.HasPrefix(csvText,
		"Delv Ship-To Party,Delv Ship-To Name,Esquema,Motivo,Fecha de recolección,Nombre de oportunidad1,Fecha de cierre,Etapa,Agente BPO\n"))
	assert.Contains(t, csvText, "2000,OXXO Centro,Dedicado,#N/A,8/4/2025,OXXO Centro 7-abr-2025,7/4/2025,Pendiente de Contacto,Melissa Florian\n")

	assert.Equal(t, out.Result.RunID, out.Report.RunID)
	assert.Len(t, out.Report.Files, 2)
}

func TestProcess_ByteIdenticalCSV(t *testing.T) {
	input := roster(append(generic(23), "3000,Fresko Sur,Regular,,OD")...)

	first, err := process(t, processor.Request{Input: strings.NewReader(input)})
	require.NoError(t, err)
	second, err := process(t, processor.Request{Input: strings.NewReader(input)})
	require.NoError(t, err)

	assert.NotEqual(t, first.Result.RunID, second.Result.RunID)
	assert.Equal(t, first.Artifacts[1].Data, second.Artifacts[1].Data)
	assert.Equal(t, first.Artifacts[1].Digest, second.Artifacts[1].Digest)
}

func TestProcess_Sentinels(t *testing.T) {
	tests := map[string]struct {
		list          string
		name          string
		sentinelCount int
		warning       error
	}{
		"ValidList": {
			list:          "Delv Ship-To Party\n1001\n1003.0\n",
			name:          "incontactables.csv",
			sentinelCount: 2,
		},
		"UnreadableList": {
			list:    "Cliente\n1001\n",
			name:    "incontactables.csv",
			warning: customerrors.ErrSentinelList,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := process(t, processor.Request{
				Input:         strings.NewReader(roster(generic(10)...)),
				Sentinels:     strings.NewReader(tt.list),
				SentinelsName: tt.name,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.sentinelCount, out.Result.SentinelCount)
			if tt.warning != nil {
				require.NotEmpty(t, out.Result.Warnings)
				assert.True(t, errors.Is(out.Result.Warnings[0], tt.warning))
			}
		})
	}
}

func TestProcess_RosterEdits(t *testing.T) {
	tests := map[string]struct {
		absent        string
		substitute    string
		expectedError error
		agents        []string
	}{
		"Substitute": {
			absent:     "Nancy Zet",
			substitute: "Pedro Ruiz",
			agents:     []string{"Ana Paniagua", "Alysson Garcia", "Julio de Leon", "Pedro Ruiz", "Melissa Florian"},
		},
		"Remove": {
			absent: "Nancy Zet",
			agents: []string{"Ana Paniagua", "Alysson Garcia", "Julio de Leon", "Melissa Florian"},
		},
		"UnknownAgent": {
			absent:        "Nobody",
			expectedError: customerrors.ErrUnknownAgent,
		},
		"SubstituteCollides": {
			absent:        "Nancy Zet",
			substitute:    "ana paniagua",
			expectedError: customerrors.ErrNameCollision,
		},
		"SubstituteIsSentinelLabel": {
			absent:        "Nancy Zet",
			substitute:    "Incontactables",
			expectedError: customerrors.ErrNameCollision,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := process(t, processor.Request{
				Input:      strings.NewReader(roster(generic(12)...)),
				Absent:     tt.absent,
				Substitute: tt.substitute,
			})

			if tt.expectedError != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectedError))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.agents, out.Result.Agents)
		})
	}
}

func TestProcess_MissingColumn(t *testing.T) {
	_, err := process(t, processor.Request{Input: strings.NewReader("Delv Ship-To Party,Esquema,Motivo\n1,Regular,\n")})
	require.Error(t, err)

	var cfgErr *customerrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Delv Ship-To Name", cfgErr.Field)
}

func TestProcess_SentinelsFromPath(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "incontactables.csv")
	require.NoError(t, os.WriteFile(listPath, []byte("Delv Ship-To Party\n1001\n"), 0o644))

	tests := map[string]struct {
		path          string
		sentinelCount int
		warning       bool
	}{
		"ReadableFile": {
			path:          listPath,
			sentinelCount: 1,
		},
		"MissingFile": {
			path:    filepath.Join(dir, "missing.xlsx"),
			warning: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := process(t, processor.Request{
				Input:         strings.NewReader(roster(generic(10)...)),
				SentinelsPath: tt.path,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.sentinelCount, out.Result.SentinelCount)
			if !tt.warning {
				assert.Empty(t, out.Result.Warnings)
				return
			}
			require.NotEmpty(t, out.Result.Warnings)
			assert.True(t, errors.Is(out.Result.Warnings[0], customerrors.ErrSentinelList))
			assert.Contains(t, out.Report.Warnings[0], "missing.xlsx")
		})
	}
}
