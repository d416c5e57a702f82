package client

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ninep/protocol"
)

var _ = Describe("client / tag and fid allocation", func() {
	var c *Conn

	BeforeEach(func() {
		c = &Conn{
			respChans: make(map[protocol.Tag]chan protocol.Message),
			fids:      make(map[protocol.Fid]struct{}),
		}
	})

	It("never hands out NOTAG", func() {
		c.nextTag = protocol.NOTAG - 1

		tag, err := c.getNextTag()
		Expect(err).To(Succeed())
		Expect(tag).To(Equal(protocol.NOTAG - 1))

		tag, err = c.getNextTag()
		Expect(err).To(Succeed())
		Expect(tag).To(Equal(protocol.Tag(0)))
	})

	It("skips tags that are in flight", func() {
		c.respChans[0] = make(chan protocol.Message, 1)
		c.respChans[1] = make(chan protocol.Message, 1)

		tag, err := c.getNextTag()
		Expect(err).To(Succeed())
		Expect(tag).To(Equal(protocol.Tag(2)))
	})

	It("runs out of tags", func() {
		for tag := protocol.Tag(0); tag < protocol.NOTAG; tag++ {
			c.respChans[tag] = nil
		}

		_, err := c.getNextTag()
		Expect(err).To(MatchError(ErrNoTags))
	})

	It("never hands out NOFID and reuses freed fids", func() {
		c.nextFid = protocol.NOFID

		Expect(c.allocFid()).To(Equal(protocol.Fid(0)))
		Expect(c.allocFid()).To(Equal(protocol.Fid(1)))

		c.freeFid(0)
		c.nextFid = 0
		Expect(c.allocFid()).To(Equal(protocol.Fid(0)))
		Expect(c.allocFid()).To(Equal(protocol.Fid(2)))
	})
})
