package control

import (
	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/poly"
)

// None coasts: wheels straight, no throttle.
type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Compute(x dynamo.State, ref poly.Poly) (dynamo.Command, error) {
	return dynamo.Command{}, nil
}
