package executor

// ZipIterator pairs rows from two iterators positionally, stopping as soon
// as either side is exhausted. Peek isn't supported: computing it would
// require consuming and re-buffering both sides, so the call is rejected
// instead.
type ZipIterator struct {
	a, b RowIterator
}

func Zip(a, b RowIterator) *ZipIterator { return &ZipIterator{a: a, b: b} }

func (z *ZipIterator) Type() IteratorType { return IterDefault }

func (z *ZipIterator) Next() (Row, bool, error) {
	aRow, aOk, err := z.a.Next()
	if err != nil {
		return nil, false, err
	}
	bRow, bOk, err := z.b.Next()
	if err != nil {
		return nil, false, err
	}
	if !aOk || !bOk {
		return nil, false, nil
	}
	return append(append(Row{}, aRow...), bRow...), true, nil
}

func (z *ZipIterator) Peek() (Row, bool, error) { return nil, false, ErrPeekUnsupported }

func (z *ZipIterator) Reset() error {
	if err := z.a.Reset(); err != nil {
		return err
	}
	return z.b.Reset()
}

func (z *ZipIterator) SizeHint() (int, int, bool) {
	aLo, aHi, aHas := z.a.SizeHint()
	bLo, bHi, bHas := z.b.SizeHint()
	lo := aLo
	if bLo < lo {
		lo = bLo
	}
	if !aHas || !bHas {
		return lo, 0, false
	}
	hi := aHi
	if bHi < hi {
		hi = bHi
	}
	return lo, hi, true
}

func (z *ZipIterator) Nth(n int) (Row, bool, error) {
	if _, _, err := z.a.Nth(n); err != nil {
		return nil, false, err
	}
	if _, _, err := z.b.Nth(n); err != nil {
		return nil, false, err
	}
	return z.Next()
}

func (z *ZipIterator) Last() (Row, bool, error) {
	aRow, aOk, err := z.a.Last()
	if err != nil {
		return nil, false, err
	}
	bRow, bOk, err := z.b.Last()
	if err != nil {
		return nil, false, err
	}
	if !aOk || !bOk {
		return nil, false, nil
	}
	return append(append(Row{}, aRow...), bRow...), true, nil
}

func (z *ZipIterator) Size() int {
	n := z.a.Size()
	if m := z.b.Size(); m < n {
		n = m
	}
	return n
}

func (z *ZipIterator) IsEmpty() bool { return z.Size() == 0 }

// ChainIterator delivers every row of first, then every row of second.
type ChainIterator struct {
	first, second RowIterator
	inFirst       bool
}

func Chain(first, second RowIterator) *ChainIterator {
	return &ChainIterator{first: first, second: second, inFirst: true}
}

func (c *ChainIterator) Type() IteratorType { return IterDefault }

func (c *ChainIterator) Next() (Row, bool, error) {
	if c.inFirst {
		row, ok, err := c.first.Next()
		if err != nil {
			return nil, false, err
		}
		if ok {
			return row, true, nil
		}
		c.inFirst = false
	}
	return c.second.Next()
}

func (c *ChainIterator) Peek() (Row, bool, error) {
	if c.inFirst {
		return c.first.Peek()
	}
	return c.second.Peek()
}

func (c *ChainIterator) Reset() error {
	c.inFirst = true
	if err := c.first.Reset(); err != nil {
		return err
	}
	return c.second.Reset()
}

func (c *ChainIterator) SizeHint() (int, int, bool) {
	firstLo, firstHi, firstHas := c.first.SizeHint()
	secondLo, secondHi, secondHas := c.second.SizeHint()
	if !firstHas || !secondHas {
		return firstLo + secondLo, 0, false
	}
	return firstLo + secondLo, firstHi + secondHi, true
}

func (c *ChainIterator) Nth(n int) (Row, bool, error) {
	firstSize, _, _ := c.first.SizeHint()
	if n < firstSize {
		return c.first.Nth(n)
	}
	c.inFirst = false
	return c.second.Nth(n - firstSize)
}

func (c *ChainIterator) Last() (Row, bool, error) { return c.second.Last() }

func (c *ChainIterator) Size() int { return c.first.Size() + c.second.Size() }

func (c *ChainIterator) IsEmpty() bool { return c.first.IsEmpty() && c.second.IsEmpty() }

// FilterIterator yields only the rows of iter for which predicate reports
// true.
type FilterIterator struct {
	iter      RowIterator
	predicate func(Row) bool
}

func Filter(iter RowIterator, predicate func(Row) bool) *FilterIterator {
	return &FilterIterator{iter: iter, predicate: predicate}
}

func (f *FilterIterator) Type() IteratorType { return IterDefault }

func (f *FilterIterator) Next() (Row, bool, error) {
	for {
		row, ok, err := f.iter.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if f.predicate(row) {
			return row, true, nil
		}
	}
}

func (f *FilterIterator) Peek() (Row, bool, error) { return nil, false, ErrPeekUnsupported }

func (f *FilterIterator) Reset() error { return f.iter.Reset() }

func (f *FilterIterator) SizeHint() (int, int, bool) {
	_, hi, has := f.iter.SizeHint()
	return 0, hi, has
}

func (f *FilterIterator) Nth(n int) (Row, bool, error) {
	count := 0
	for {
		row, ok, err := f.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if count == n {
			return row, true, nil
		}
		count++
	}
}

func (f *FilterIterator) Last() (Row, bool, error) {
	var last Row
	found := false
	for {
		row, ok, err := f.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return last, found, nil
		}
		last, found = row, true
	}
}

func (f *FilterIterator) Size() int {
	lo, _, _ := f.SizeHint()
	return lo
}

func (f *FilterIterator) IsEmpty() bool { return f.iter.IsEmpty() }

// MapIterator transforms every row of iter with mapper.
type MapIterator struct {
	iter   RowIterator
	mapper func(Row) Row
}

func Map(iter RowIterator, mapper func(Row) Row) *MapIterator {
	return &MapIterator{iter: iter, mapper: mapper}
}

func (m *MapIterator) Type() IteratorType { return IterDefault }

func (m *MapIterator) Next() (Row, bool, error) {
	row, ok, err := m.iter.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	return m.mapper(row), true, nil
}

func (m *MapIterator) Peek() (Row, bool, error) { return nil, false, ErrPeekUnsupported }

func (m *MapIterator) Reset() error { return m.iter.Reset() }

func (m *MapIterator) SizeHint() (int, int, bool) { return m.iter.SizeHint() }

func (m *MapIterator) Nth(n int) (Row, bool, error) {
	row, ok, err := m.iter.Nth(n)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.mapper(row), true, nil
}

func (m *MapIterator) Last() (Row, bool, error) {
	row, ok, err := m.iter.Last()
	if err != nil || !ok {
		return nil, false, err
	}
	return m.mapper(row), true, nil
}

func (m *MapIterator) Size() int { return m.iter.Size() }

func (m *MapIterator) IsEmpty() bool { return m.iter.IsEmpty() }

// TakeIterator yields at most n rows of iter.
type TakeIterator struct {
	iter      RowIterator
	remaining int
}

func Take(iter RowIterator, n int) *TakeIterator { return &TakeIterator{iter: iter, remaining: n} }

func (t *TakeIterator) Type() IteratorType { return IterDefault }

func (t *TakeIterator) Next() (Row, bool, error) {
	if t.remaining == 0 {
		return nil, false, nil
	}
	t.remaining--
	return t.iter.Next()
}

func (t *TakeIterator) Peek() (Row, bool, error) {
	if t.remaining == 0 {
		return nil, false, nil
	}
	return t.iter.Peek()
}

func (t *TakeIterator) Reset() error { return t.iter.Reset() }

func (t *TakeIterator) SizeHint() (int, int, bool) {
	lo, _, _ := t.iter.SizeHint()
	if t.remaining < lo {
		lo = t.remaining
	}
	return lo, t.remaining, true
}

func (t *TakeIterator) Nth(n int) (Row, bool, error) {
	if n >= t.remaining {
		t.remaining = 0
		return nil, false, nil
	}
	t.remaining -= n + 1
	return t.iter.Nth(n)
}

func (t *TakeIterator) Last() (Row, bool, error) {
	t.remaining = 0
	return t.iter.Last()
}

func (t *TakeIterator) Size() int {
	if s := t.iter.Size(); s < t.remaining {
		return s
	}
	return t.remaining
}

func (t *TakeIterator) IsEmpty() bool { return t.Size() == 0 }

// SkipIterator discards the first n rows of iter, then yields the rest.
type SkipIterator struct {
	iter       RowIterator
	targetSkip int
	skipped    bool
}

func Skip(iter RowIterator, n int) *SkipIterator { return &SkipIterator{iter: iter, targetSkip: n} }

func (s *SkipIterator) Type() IteratorType { return IterDefault }

func (s *SkipIterator) skipOnce() error {
	if s.skipped {
		return nil
	}
	for i := 0; i < s.targetSkip; i++ {
		if _, _, err := s.iter.Next(); err != nil {
			return err
		}
	}
	s.skipped = true
	return nil
}

func (s *SkipIterator) Next() (Row, bool, error) {
	if err := s.skipOnce(); err != nil {
		return nil, false, err
	}
	return s.iter.Next()
}

func (s *SkipIterator) Peek() (Row, bool, error) { return nil, false, ErrPeekUnsupported }

func (s *SkipIterator) Reset() error {
	s.skipped = false
	return s.iter.Reset()
}

func (s *SkipIterator) SizeHint() (int, int, bool) {
	lo, hi, has := s.iter.SizeHint()
	lo -= s.targetSkip
	if lo < 0 {
		lo = 0
	}
	if !has {
		return lo, 0, false
	}
	hi -= s.targetSkip
	if hi < 0 {
		hi = 0
	}
	return lo, hi, true
}

func (s *SkipIterator) Nth(n int) (Row, bool, error) {
	s.skipped = true
	return s.iter.Nth(n + s.targetSkip)
}

func (s *SkipIterator) Last() (Row, bool, error) { return s.iter.Last() }

func (s *SkipIterator) Size() int {
	lo, _, _ := s.SizeHint()
	return lo
}

func (s *SkipIterator) IsEmpty() bool { return s.Size() == 0 }
