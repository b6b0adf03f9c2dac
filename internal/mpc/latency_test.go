package mpc_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/poly"
)

var _ = Describe("Compensate", func() {
	model := models.NewBicycle(mpc.DefaultLf)
	straight := poly.Poly{0, 0, 0, 0}

	It("is the identity for zero delay", func() {
		s := dynamo.State{1, 2, 0.3, 7, 0.1, -0.2}
		Expect(mpc.Compensate(model, s, dynamo.Actuation{Delta: 0.2, A: 1}, straight, 0, 0.1)).To(Equal(s))
	})

	It("matches k direct applications of the vehicle model", func() {
		f := poly.Poly{0.4, -0.05, 0.003, -0.0001}
		raw := dynamo.State{0, 0.1, 0.02, 12, 0.3, -0.04}
		held := dynamo.Actuation{Delta: -0.07, A: 0.4}

		for k := 1; k <= 4; k++ {
			want := raw
			for i := 0; i < k; i++ {
				want = model.Step(want, held, f, 0.1)
			}
			Expect(mpc.Compensate(model, raw, held, f, k, 0.1)).To(Equal(want))
		}
	})

	It("advances a vehicle on a straight path by v*delay", func() {
		got := mpc.Compensate(model, dynamo.State{0, 0, 0, 10, 0, 0}, dynamo.Actuation{}, straight, 2, 0.1)
		Expect(got[dynamo.X]).To(BeNumerically("~", 2.0, 1e-12))
		Expect(got[dynamo.Y]).To(Equal(0.0))
		Expect(got[dynamo.Psi]).To(Equal(0.0))
		Expect(got[dynamo.V]).To(Equal(10.0))
		Expect(got[dynamo.CTE]).To(Equal(0.0))
		Expect(got[dynamo.EPsi]).To(Equal(0.0))
	})
})
