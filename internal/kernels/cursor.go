package kernels

// Cursor walks the output matrix in row-major order and computes one element
// per Next call.
type Cursor struct {
	a, b []float32
	size int
	x, y int
}

// NewCursor positions a cursor on element (0, 0) of A·B.
func NewCursor(a, b []float32, size int) (*Cursor, error) {
	if err := checkInputs(a, b, size); err != nil {
		return nil, err
	}
	return &Cursor{a: a, b: b, size: size}, nil
}

// Next returns the next output element. ok is false once every element has
// been produced.
func (c *Cursor) Next() (v float32, ok bool) {
	if c.y >= c.size {
		return 0, false
	}
	var sum float32
	for k := 0; k < c.size; k++ {
		sum += float32(c.a[c.y*c.size+k] * c.b[c.x+c.size*k])
	}
	c.x++
	if c.x == c.size {
		c.x = 0
		c.y++
	}
	return sum, true
}

// Remaining is the number of elements not yet produced.
func (c *Cursor) Remaining() int {
	return (c.size-c.y)*c.size - c.x
}

// CursorMatmul drains a Cursor into a result matrix.
func CursorMatmul(a, b []float32, size int) ([]float32, error) {
	c, err := NewCursor(a, b, size)
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, c.Remaining())
	for {
		v, ok := c.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}
