package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRecord_UnmarshalDropsNonPositiveSalary(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMin *int
		wantMax *int
	}{
		{"zero min", `{"salary_min": 0, "salary_max": 150000}`, nil, IntPtr(150000)},
		{"negative max", `{"salary_min": 90000, "salary_max": -1}`, IntPtr(90000), nil},
		{"null bounds", `{"salary_min": null, "salary_max": null}`, nil, nil},
		{"missing bounds", `{"title": "ML Engineer"}`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r JobRecord
			require.NoError(t, json.Unmarshal([]byte(tt.data), &r))
			assert.Equal(t, tt.wantMin, r.SalaryMin)
			assert.Equal(t, tt.wantMax, r.SalaryMax)
		})
	}
}

func TestJobRecord_ZeroSalaryNotReemitted(t *testing.T) {
	var r JobRecord
	require.NoError(t, json.Unmarshal([]byte(`{"job_id": "abc", "salary_min": 0, "salary_max": 0}`), &r))
	assert.False(t, r.HasSalary())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"salary_min":null`)
	assert.Contains(t, string(data), `"salary_max":null`)
}

func TestJobSet_UnmarshalBinaryNormalizesSalary(t *testing.T) {
	var set JobSet
	require.NoError(t, set.UnmarshalBinary([]byte(`[{"job_id": "a", "salary_min": 0, "salary_max": 120000}]`)))
	require.Len(t, set, 1)
	assert.Nil(t, set[0].SalaryMin)
	assert.Equal(t, 120000, *set[0].SalaryMax)
}
