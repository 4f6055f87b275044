package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLstripRemovesOnlyLeadingEmpty(t *testing.T) {
	require.Equal(t, []string{"-c", "", "print(1)"}, lstrip([]string{"", "", "-c", "", "print(1)"}))
}

func TestLstripAllEmptyYieldsNil(t *testing.T) {
	require.Nil(t, lstrip([]string{"", "", ""}))
}

func TestLstripNoLeadingEmpty(t *testing.T) {
	require.Equal(t, []string{"-c", "print(1)"}, lstrip([]string{"-c", "print(1)"}))
}
