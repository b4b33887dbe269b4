// Package progress reports bulk load progress as rows are inserted.
package progress

// Observer is notified as the bulk load moves through tables. Calls arrive
// from a single goroutine.
type Observer interface {
	// SetTotals is called once before the first table.
	SetTotals(tables int, approxRows int64)
	StartTable(name string, approxRows int64)
	// Add reports rows inserted since the previous call.
	Add(n int64)
	EndTable(name string)
	// Finish is called once after the load commits or fails.
	Finish()
}

// Null discards all progress.
type Null struct{}

func (Null) SetTotals(int, int64)     {}
func (Null) StartTable(string, int64) {}
func (Null) Add(int64)                {}
func (Null) EndTable(string)          {}
func (Null) Finish()                  {}

// Multi fans progress out to several observers.
type Multi []Observer

func (m Multi) SetTotals(tables int, rows int64) {
	for _, o := range m {
		o.SetTotals(tables, rows)
	}
}

func (m Multi) StartTable(name string, rows int64) {
	for _, o := range m {
		o.StartTable(name, rows)
	}
}

func (m Multi) Add(n int64) {
	for _, o := range m {
		o.Add(n)
	}
}

func (m Multi) EndTable(name string) {
	for _, o := range m {
		o.EndTable(name)
	}
}

func (m Multi) Finish() {
	for _, o := range m {
		o.Finish()
	}
}
