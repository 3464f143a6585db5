package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskly/trackd/internal/utils/kv"
)

func TestParseSpecs(t *testing.T) {
	tests := map[string]struct {
		specs  []string
		exp    map[string]string
		expErr bool
	}{
		"Empty specs parse to an empty map.": {
			specs: nil,
			exp:   map[string]string{},
		},

		"Key value pairs are parsed.": {
			specs: []string{"taskId=task-1", "source=timer"},
			exp:   map[string]string{"taskId": "task-1", "source": "timer"},
		},

		"Empty values are allowed.": {
			specs: []string{"note="},
			exp:   map[string]string{"note": ""},
		},

		"Values may contain equals signs.": {
			specs: []string{"url=http://x/?a=b"},
			exp:   map[string]string{"url": "http://x/?a=b"},
		},

		"Duplicate keys keep the last value.": {
			specs: []string{"k=1", "k=2"},
			exp:   map[string]string{"k": "2"},
		},

		"A spec without a separator is rejected.": {
			specs:  []string{"justakey"},
			expErr: true,
		},

		"An invalid key is rejected.": {
			specs:  []string{"bad key=1"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := kv.ParseSpecs(test.specs)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, test.exp, got)
			}
		})
	}
}
