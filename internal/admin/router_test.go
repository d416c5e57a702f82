package admin_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/ninep/internal/admin"
	"github.com/luma/ninep/internal/meta"
	"github.com/luma/ninep/transport"
)

var _ = Describe("admin", func() {
	get := func(options admin.Options, path string) *httptest.ResponseRecorder {
		router := admin.NewRouter(options)

		w := httptest.NewRecorder()
		req, err := http.NewRequest(http.MethodGet, path, nil)
		Expect(err).To(Succeed())

		router.ServeHTTP(w, req)
		return w
	}

	It("answers /ping", func() {
		w := get(admin.Options{}, "/ping")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("pong"))
	})

	It("lists sessions", func() {
		w := get(admin.Options{
			Sessions: func() []transport.SessionInfo {
				return []transport.SessionInfo{
					{ID: "a", RemoteAddr: "127.0.0.1:1234", Msize: 8216},
				}
			},
		}, "/sessions")

		Expect(w.Code).To(Equal(http.StatusOK))

		body := w.Body.String()
		Expect(gjson.Get(body, "sessions.#").Int()).To(Equal(int64(1)))
		Expect(gjson.Get(body, "sessions.0.id").String()).To(Equal("a"))
		Expect(gjson.Get(body, "sessions.0.remoteAddr").String()).To(Equal("127.0.0.1:1234"))
		Expect(gjson.Get(body, "sessions.0.msize").Int()).To(Equal(int64(8216)))
	})

	It("returns an empty list without sessions", func() {
		w := get(admin.Options{}, "/sessions")
		Expect(w.Body.String()).To(MatchJSON(`{"sessions":[]}`))
	})

	It("reports the build", func() {
		w := get(admin.Options{}, "/version")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gjson.Get(w.Body.String(), "version").String()).To(Equal(meta.Version))
		Expect(gjson.Get(w.Body.String(), "platform").String()).To(Equal(meta.GetInfo().Platform))
	})
})
