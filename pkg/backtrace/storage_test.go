package backtrace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quillgo/pkg/record"
)

func TestStorage_KeepsLastNInInsertionOrder(t *testing.T) {
	s := NewStorage(3)
	for i := 0; i < 5; i++ {
		s.Store(StoredEvent{Event: record.TransitEvent{Message: itoaTest(i)}})
	}
	require.Equal(t, 3, s.Len())

	var got []string
	s.Process(func(e StoredEvent) { got = append(got, e.Event.Message) })
	require.Equal(t, []string{"2", "3", "4"}, got)
	require.Equal(t, 0, s.Len())
}

func itoaTest(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return "many"
}
