package bridge

import "github.com/zjrosen/neovis/internal/command"

// Coalesce reorders one drained batch for dispatch: the last resize in the
// batch comes first, earlier resizes are dropped, and every other command
// follows in submission order.
func Coalesce(batch []command.Command) []command.Command {
	last := -1
	resizes := 0
	for i, c := range batch {
		if command.IsResize(c) {
			last = i
			resizes++
		}
	}
	if resizes == 0 {
		return batch
	}

	out := make([]command.Command, 0, len(batch)-resizes+1)
	out = append(out, batch[last])
	for _, c := range batch {
		if !command.IsResize(c) {
			out = append(out, c)
		}
	}
	return out
}
