package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"no logfile", []string{"HIG-18-001"}, []string{"HIG-18-001"}},
		{"bare last", []string{"HIG-18-001", "-l"}, []string{"HIG-18-001", "-l", "differLog.txt"}},
		{"bare before flag", []string{"-l", "-v", "HIG-18-001"}, []string{"-l", "differLog.txt", "-v", "HIG-18-001"}},
		{"long form", []string{"--logfile", "--revBase", "."}, []string{"--logfile", "differLog.txt", "--revBase", "."}},
		{"named file", []string{"-l", "my.log", "HIG-18-001"}, []string{"-l", "my.log", "HIG-18-001"}},
		{"after terminator", []string{"--", "-l"}, []string{"--", "-l"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArgs(tt.in))
		})
	}
}

func TestInsideDir(t *testing.T) {
	assert.True(t, insideDir("/doc", "/doc/build")("build/x.tex"))
	assert.False(t, insideDir("/doc", "/doc/build")("src/x.tex"))
	assert.False(t, insideDir("/doc", "/elsewhere")("build/x.tex"))
}
