package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/nickyhof/QueryGate/query"
)

const (
	MaxLine  = 10000 // one header line
	MaxLines = 1000  // header lines of one request

	serverName = "querygate"
)

const headerTemplate = "HTTP/1.0 200 OK\r\n" +
	"Server: " + serverName + "\r\n" +
	"Access-Control-Allow-Origin: *\r\n" +
	"Connection: Close\r\n" +
	"Cache-Control: no-cache, must-revalidate\r\n" +
	"Pragma: no-cache\r\n" +
	"Content-Length: %d\r\n" +
	"Content-Type: %s\r\n\r\n"

const unavailableResponse = "HTTP/1.0 503 Service Unavailable\r\n" +
	"Server: " + serverName + "\r\n" +
	"Connection: Close\r\n" +
	"Content-Length: 0\r\n\r\n"

// readRequest reads one HTTP request from conn. A non-empty message means
// the request could not be used and is the error to answer with.
func readRequest(conn net.Conn) (query.Request, string) {
	req := query.Request{}
	req.IP, req.Port = splitAddr(conn.RemoteAddr())

	limited := io.LimitReader(conn, int64(MaxLine*MaxLines+query.MaxBodyLen))
	hreq, err := http.ReadRequest(bufio.NewReaderSize(limited, MaxLine))
	if err != nil {
		return req, query.MsgHTTPRequest
	}
	defer hreq.Body.Close()
	if len(hreq.Header) > MaxLines {
		return req, query.MsgHTTPRequest
	}

	req.Method = hreq.Method
	req.Query = hreq.URL.RawQuery
	req.ContentType = hreq.Header.Get("Content-Type")
	if auth := hreq.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			req.Token = strings.TrimSpace(token)
		}
	}

	switch hreq.Method {
	case http.MethodGet:
		if req.Query == "" {
			return req, query.MsgHTTPNoQuery
		}
	case http.MethodPost:
		if len(hreq.TransferEncoding) > 0 || hreq.ContentLength < 0 {
			return req, query.MsgCGIQuery
		}
		if hreq.ContentLength > query.MaxBodyLen {
			return req, query.MsgLongQuery
		}
		req.Body = make([]byte, hreq.ContentLength)
		if _, err := io.ReadFull(hreq.Body, req.Body); err != nil {
			return req, query.MsgCGIQuery
		}
	default:
		return req, query.MsgMethod
	}
	return req, ""
}

func splitAddr(addr net.Addr) (ip, port string) {
	if addr == nil {
		return "", ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), ""
	}
	return host, port
}

// writeResponse writes the fixed response header and the payload.
func writeResponse(w io.Writer, resp query.Response) error {
	header := fmt.Sprintf(headerTemplate, len(resp.Body), resp.ContentType)
	bufs := net.Buffers{[]byte(header), resp.Body}
	_, err := bufs.WriteTo(w)
	return err
}

func writeUnavailable(w io.Writer) error {
	_, err := io.WriteString(w, unavailableResponse)
	return err
}
