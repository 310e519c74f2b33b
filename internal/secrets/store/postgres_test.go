package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagsRoundTrip(t *testing.T) {
	t.Run("delimiters in keys and values survive", func(t *testing.T) {
		tags := map[string]string{
			"team":    "payments,billing",
			"formula": "rate=1.5",
			"k=v,x":   "y",
		}
		require.Equal(t, tags, decodeTags(encodeTags(tags)))
	})

	t.Run("empty set encodes to empty string", func(t *testing.T) {
		require.Empty(t, encodeTags(nil))
		require.Nil(t, decodeTags(""))
	})
}
