package roster

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "roster.yaml", `
professionals:
  - id: ricardo
    name: Dr. Ricardo Silva
    specialty: Implantodontista
    hours:
      Monday: ["13:00-18:00", "08:00-12:00"]
      friday: ["08:00-12:00"]
  - id: luiza
    name: Dra. Luiza Souza
    hours:
      saturday: ["20:00-24:00"]
`)

	profs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, profs, 2)

	r := profs[0]
	assert.Equal(t, "ricardo", r.ID)
	assert.Equal(t, "Implantodontista", r.Specialty)
	require.Len(t, r.Hours[time.Monday], 2)
	assert.Equal(t, scheduling.MustClock("08:00"), r.Hours[time.Monday][0].Start)
	assert.Len(t, r.Hours[time.Friday], 1)
	assert.Equal(t, scheduling.MinutesPerDay, profs[1].Hours[time.Saturday][0].End)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "roster.json", `{"professionals":[{"id":"andre","name":"Dr. Andre Marques","hours":{"tuesday":["09:00-17:00"]}}]}`)

	profs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, profs, 1)
	assert.Equal(t, scheduling.Interval{Start: 540, End: 1020}, profs[0].Hours[time.Tuesday][0])
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"missing id":   "professionals:\n  - name: x\n",
		"duplicate id": "professionals:\n  - id: a\n  - id: a\n",
		"bad weekday":  "professionals:\n  - id: a\n    hours:\n      funday: [\"08:00-09:00\"]\n",
		"bad range":    "professionals:\n  - id: a\n    hours:\n      monday: [\"08:00\"]\n",
		"overlap":      "professionals:\n  - id: a\n    hours:\n      monday: [\"08:00-12:00\", \"11:00-13:00\"]\n",
		"inverted":     "professionals:\n  - id: a\n    hours:\n      monday: [\"12:00-08:00\"]\n",
		"bad clock":    "professionals:\n  - id: a\n    hours:\n      monday: [\"8h-9h\"]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "roster.yaml", body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSave_ReadsBack(t *testing.T) {
	want := []scheduling.Professional{
		{
			ID:        "ricardo",
			Name:      "Dr. Ricardo Silva",
			Specialty: "Implantodontista",
			Hours: scheduling.WorkingHours{
				time.Monday: {
					{Start: scheduling.MustClock("13:00"), End: scheduling.MustClock("18:00")},
					{Start: scheduling.MustClock("08:00"), End: scheduling.MustClock("12:00")},
				},
				time.Saturday: {{Start: scheduling.MustClock("20:00"), End: scheduling.MinutesPerDay}},
			},
		},
	}

	for _, ext := range []string{"yaml", "json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "roster."+ext)
			require.NoError(t, Save(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, want[0].ID, got[0].ID)
			assert.Equal(t, want[0].Specialty, got[0].Specialty)
			assert.Equal(t, want[0].Hours.Normalize(), got[0].Hours)
		})
	}
}
