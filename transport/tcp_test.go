package transport_test

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/ninep/fileserver"
	"github.com/luma/ninep/protocol"
	"github.com/luma/ninep/storage"
	"github.com/luma/ninep/transport"
)

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		var tcp *transport.TCP

		BeforeEach(func() {
			tcp = makeTCPServer(`{"foo":"bar"}`)
		})

		AfterEach(func() {
			Expect(tcp.Close()).To(Succeed())
		})

		It("listens on the desired port", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			conn.Close()
		})

		It("answers Tversion", func() {
			client := dial(tcp)
			defer client.Close()

			Expect(client.WriteMsg(&protocol.Tversion{Tag: protocol.NOTAG, Msize: 8192, Version: protocol.Version})).To(Succeed())

			resp, err := client.ReadMsg()
			Expect(err).To(Succeed())
			Expect(resp).To(Equal(&protocol.Rversion{Tag: protocol.NOTAG, Msize: 8192, Version: protocol.Version}))
		})

		It("refuses a Tversion whose msize is too small to carry anything", func() {
			client := dial(tcp)
			defer client.Close()

			frame, err := protocol.Encode(&protocol.Tversion{Tag: protocol.NOTAG, Msize: 10, Version: protocol.Version}, 0)
			Expect(err).To(Succeed())

			_, err = client.Write(frame)
			Expect(err).To(Succeed())

			Expect(client.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

			resp, err := client.ReadMsg()
			Expect(err).To(Succeed())
			Expect(resp).To(Equal(&protocol.Rerror{Tag: protocol.NOTAG, Ename: "msize too small"}))
		})

		It("lists active sessions with their msize", func() {
			client := dial(tcp)
			defer client.Close()

			Expect(client.WriteMsg(&protocol.Tversion{Tag: protocol.NOTAG, Msize: 4096, Version: protocol.Version})).To(Succeed())
			_, err := client.ReadMsg()
			Expect(err).To(Succeed())

			sessions := tcp.Sessions()
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].ID).NotTo(BeEmpty())
			Expect(sessions[0].RemoteAddr).To(Equal(client.LocalAddr().String()))
			Expect(sessions[0].Msize).To(Equal(uint32(4096)))
		})

		It("answers a malformed request with Rerror and then hangs up", func() {
			client := dial(tcp)
			defer client.Close()

			// A Twalk whose body stops half way through its fid
			frame := make([]byte, 9)
			binary.LittleEndian.PutUint32(frame[0:4], 9)
			frame[4] = uint8(protocol.TypeTwalk)
			binary.LittleEndian.PutUint16(frame[5:7], 5)

			// A well formed request right behind it is never answered
			clunk, err := protocol.Encode(&protocol.Tclunk{Tag: 6, Fid: 1}, 0)
			Expect(err).To(Succeed())

			_, err = client.Write(append(frame, clunk...))
			Expect(err).To(Succeed())

			Expect(client.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

			resp, err := client.ReadMsg()
			Expect(err).To(Succeed())
			Expect(resp).To(BeAssignableToTypeOf(&protocol.Rerror{}))
			Expect(resp.GetTag()).To(Equal(protocol.Tag(5)))

			_, err = client.ReadMsg()
			Expect(err).To(HaveOccurred())
			Eventually(tcp.Sessions).Should(BeEmpty())
		})

		It("drops the connection on an invalid frame length", func() {
			client := dial(tcp)
			defer client.Close()

			_, err := client.Write([]byte{3, 0, 0, 0})
			Expect(err).To(Succeed())

			Expect(client.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			_, err = client.ReadMsg()
			Expect(err).To(HaveOccurred())
		})
	})

	It("closes client connections when closed", func() {
		tcp := makeTCPServer("")
		client := dial(tcp)
		defer client.Close()

		Eventually(tcp.Sessions).Should(HaveLen(1))
		Expect(tcp.Close()).To(Succeed())

		Expect(client.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
		_, err := client.ReadMsg()
		Expect(err).To(HaveOccurred())
		Expect(tcp.Sessions()).To(BeEmpty())
	})

	It("shuts down once clients disconnect", func() {
		tcp := makeTCPServer("")
		client := dial(tcp)

		Eventually(tcp.Sessions).Should(HaveLen(1))
		client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Expect(tcp.Shutdown(ctx)).To(Succeed())
		Expect(tcp.Sessions()).To(BeEmpty())
	})

	Describe("TCPListener.ServeConn", func() {
		It("answers with Rerror when a response does not fit msize", func() {
			listener := transport.NewTCPListener(
				context.Background(),
				"",
				false,
				func() transport.Handler { return bigReadHandler{} },
				true,
				zap.NewNop(),
			)
			defer listener.Close()

			left, right := net.Pipe()
			listener.ServeConn(right)

			client := protocol.NewConn(left)
			defer client.Close()

			Expect(client.WriteMsg(&protocol.Tversion{Tag: protocol.NOTAG, Msize: 1024, Version: protocol.Version})).To(Succeed())
			_, err := client.ReadMsg()
			Expect(err).To(Succeed())

			Expect(client.WriteMsg(&protocol.Tread{Tag: 9, Fid: 1, Count: 100})).To(Succeed())
			resp, err := client.ReadMsg()
			Expect(err).To(Succeed())
			Expect(resp).To(BeAssignableToTypeOf(&protocol.Rerror{}))
			Expect(resp.GetTag()).To(Equal(protocol.Tag(9)))
			Expect(resp.(*protocol.Rerror).Ename).To(ContainSubstring("msize is 1024"))
		})
	})
})

// bigReadHandler answers every Tread with more data than any msize allows.
type bigReadHandler struct{}

func (bigReadHandler) Handle(ctx context.Context, req protocol.Message) protocol.Message {
	switch m := req.(type) {
	case *protocol.Tversion:
		return &protocol.Rversion{Tag: m.Tag, Msize: m.Msize, Version: protocol.Version}
	default:
		return &protocol.Rread{Tag: req.GetTag(), Data: make([]byte, 4096)}
	}
}

func (bigReadHandler) Close() error {
	return nil
}

type testClient struct {
	*protocol.Conn
	raw net.Conn
}

func (c *testClient) Write(b []byte) (int, error) {
	return c.raw.Write(b)
}

func (c *testClient) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

func (c *testClient) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

func dial(tcp *transport.TCP) *testClient {
	conn, err := net.Dial("tcp", tcp.Addr().String())
	Expect(err).To(Succeed())

	return &testClient{Conn: protocol.NewConn(conn), raw: conn}
}

func makeTCPServer(restore string) *transport.TCP {
	store := storage.NewInmemoryStore()
	if restore != "" {
		Expect(store.Restore([]byte(restore))).To(Succeed())
	}

	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	srv := fileserver.New(fileserver.Options{Store: store, Log: log})

	tcp := transport.NewTCP(transport.Options{
		Host:         "127.0.0.1",
		Port:         0,
		NumListeners: 1,
		NewHandler: func() transport.Handler {
			return srv.NewHandler()
		},
		Log: log,
	})

	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}
