package feed

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"
)

// Line is one raw feed line received from a source before validation.
type Line struct {
	Source    string
	Data      []byte
	Timestamp time.Time
}

// Capture reads newline-delimited feed data from TCP sources, reconnecting
// on failure.
type Capture struct {
	sources  []string
	conns    map[string]net.Conn
	lineChan chan Line
	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.Mutex
}

// NewCapture creates a capture reading from the given host:port sources.
func NewCapture(sources []string) *Capture {
	return &Capture{
		sources:  sources,
		conns:    make(map[string]net.Conn),
		lineChan: make(chan Line, 1000),
		stopChan: make(chan struct{}),
	}
}

// Start begins reading from all sources.
func (c *Capture) Start() {
	for _, source := range c.sources {
		c.wg.Add(1)
		go c.connectToSource(source)
	}
}

// Stop closes all connections and waits for readers to finish.
func (c *Capture) Stop() {
	close(c.stopChan)
	c.mu.Lock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	close(c.lineChan)
}

// Lines returns the channel of received feed lines.
func (c *Capture) Lines() <-chan Line {
	return c.lineChan
}

func (c *Capture) connectToSource(source string) {
	defer c.wg.Done()

	reconnectDelay := 5 * time.Second
	for {
		select {
		case <-c.stopChan:
			return
		default:
			conn, err := net.Dial("tcp", source)
			if err != nil {
				fmt.Printf("Failed to connect to %s: %v. Retrying in %s...\n", source, err, reconnectDelay)
				select {
				case <-c.stopChan:
					return
				case <-time.After(reconnectDelay):
				}
				continue
			}

			c.configureKeepalive(conn, source)

			c.mu.Lock()
			c.conns[source] = conn
			c.mu.Unlock()

			fmt.Printf("Connected to source %s\n", source)
			c.readLines(source, conn)

			c.mu.Lock()
			delete(c.conns, source)
			c.mu.Unlock()
		}
	}
}

func (c *Capture) configureKeepalive(conn net.Conn, source string) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			fmt.Printf("Warning: failed to set keepalive for %s: %v\n", source, err)
		}
		if err := tcpConn.SetKeepAlivePeriod(2 * time.Second); err != nil {
			fmt.Printf("Warning: failed to set keepalive period for %s: %v\n", source, err)
		}
		if err := tcpConn.SetNoDelay(true); err != nil {
			fmt.Printf("Warning: failed to set no delay for %s: %v\n", source, err)
		}
	}
}

func (c *Capture) readLines(source string, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-c.stopChan:
			return
		default:
			if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
				fmt.Printf("Warning: failed to set read deadline for %s: %v\n", source, err)
			}
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					fmt.Printf("Read error from %s: %v\n", source, err)
				}
				return
			}

			data := append([]byte(nil), scanner.Bytes()...)
			if len(data) == 0 {
				continue
			}

			select {
			case c.lineChan <- Line{Source: source, Data: data, Timestamp: time.Now().UTC()}:
			case <-c.stopChan:
				return
			}
		}
	}
}
