package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	require.Equal(t, "canon", Fold("Cañón"))
	require.Equal(t, "perforacion diamantina", Fold("Perforación Diamantina"))
	require.Equal(t, "maria quispe", Fold("MARÍA QUISPE"))
	require.Equal(t, "broca 36mm", Fold("broca 36mm"))
}
