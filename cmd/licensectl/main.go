// licensectl 是许可服务的命令行客户端，用于排查设备许可和手动拉取脚本包。
//
//	licensectl [-server URL] verify <device_hash>
//	licensectl [-server URL] register <device_hash>
//	licensectl [-server URL] build [-o file] <device_hash>
//
// 2xx 响应退出码为 0，其余响应为 1，用法错误为 2。
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("licensectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", envOr("LICENSE_SERVER_URL", "http://localhost:80"), "服务地址")
	timeout := fs.Duration("timeout", 30*time.Second, "请求超时")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: licensectl [-server URL] <verify|register|build> [flags] <device_hash>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}

	c := &client{
		base: strings.TrimRight(*server, "/"),
		http: &http.Client{Timeout: *timeout},
	}

	switch rest[0] {
	case "verify":
		return c.postDevice("/api/v1/licenses/verify", rest[1:], stdout, stderr)
	case "register":
		return c.postDevice("/api/v1/devices/register", rest[1:], stdout, stderr)
	case "build":
		return c.build(rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fs.Usage()
		return exitUsage
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) postDevice(path string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "expected exactly one device_hash")
		return exitUsage
	}

	body, _ := json.Marshal(map[string]string{"device_hash": args[0]})
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(stderr, "request failed: %v\n", err)
		return exitFail
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(stderr, "read response: %v\n", err)
		return exitFail
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	fmt.Fprintln(stdout, string(data))
	return exitCode(resp.StatusCode)
}

func (c *client) build(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("o", "", "输出文件，默认 <device_hash>.pkg")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "expected exactly one device_hash")
		return exitUsage
	}
	hash := fs.Arg(0)

	resp, err := c.http.Get(c.base + "/api/v1/packages/" + url.PathEscape(hash))
	if err != nil {
		fmt.Fprintf(stderr, "request failed: %v\n", err)
		return exitFail
	}
	defer resp.Body.Close()

	if code := exitCode(resp.StatusCode); code != exitOK {
		data, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(stderr, "server returned %d: %s\n", resp.StatusCode, strings.TrimSpace(string(data)))
		return code
	}

	path := *out
	if path == "" {
		path = hash + ".pkg"
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stderr, "create %s: %v\n", path, err)
		return exitFail
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "write %s: %v\n", path, err)
		return exitFail
	}

	fmt.Fprintf(stdout, "wrote %s (%d bytes, plan %s)\n", path, n, resp.Header.Get("X-Bundle-Plan"))
	return exitOK
}

func exitCode(status int) int {
	if status >= 200 && status < 300 {
		return exitOK
	}
	return exitFail
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
