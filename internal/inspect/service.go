package inspect

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrServiceUnavailable is returned when no SDK bridge command is configured.
var ErrServiceUnavailable = errors.New("inspection service not configured")

// DefaultIdleTimeout is how long the bridge process may stay unused before it
// is shut down.
const DefaultIdleTimeout = 30 * time.Second

// Service talks to the inspection SDK bridge, a long-lived subprocess that
// reads length-prefixed JSON requests on stdin and answers with one JSON line
// per request on stdout. The process is started lazily and stopped after
// IdleTimeout without calls.
type Service struct {
	command     []string
	idleTimeout time.Duration

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewService creates a Service running command (program followed by its
// arguments).
func NewService(command []string) (*Service, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrServiceUnavailable
	}
	return &Service{command: command, idleTimeout: DefaultIdleTimeout}, nil
}

// SetIdleTimeout changes how long the bridge may stay idle before it is
// stopped. Non-positive values are ignored.
func (s *Service) SetIdleTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleTimeout = d
}

type request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
	Images []string       `json:"images,omitempty"`
}

type response struct {
	OK             bool    `json:"ok"`
	Error          string  `json:"error,omitempty"`
	CardType       int     `json:"card_type"`
	Outcome        string  `json:"outcome"`
	Digest         string  `json:"digest"`
	Transport      string  `json:"transport"`
	Score          float64 `json:"score"`
	Corrected      string  `json:"corrected"`
	Cut            string  `json:"cut"`
	Classification int     `json:"classification"`
	Success        bool    `json:"success"`
	ErrorCodes     []int   `json:"error_codes"`
}

// CardType implements Inspector.
func (s *Service) CardType(img image.Image, geo Geometry) (CardType, error) {
	resp, err := s.call("card_type", map[string]any{"geometry": geo}, img)
	if err != nil {
		return CardTypeInvalid, err
	}
	return CardType(resp.CardType), nil
}

// StaticQuality implements Inspector.
func (s *Service) StaticQuality(img image.Image, geo Geometry, opt StaticOptions) (*QualityVerdict, error) {
	resp, err := s.call("static_quality", map[string]any{"geometry": geo, "options": opt}, img)
	if err != nil {
		return nil, err
	}
	return resp.verdict()
}

// LightQuality implements Inspector. The NV21 buffer travels as base64 in
// the params rather than as an encoded image.
func (s *Service) LightQuality(nv21 []byte, width, height int, geo Geometry, th Thresholds, relaxed bool) (*QualityVerdict, error) {
	resp, err := s.call("light_quality", map[string]any{
		"nv21":        base64.StdEncoding.EncodeToString(nv21),
		"width":       width,
		"height":      height,
		"orientation": 0,
		"geometry":    geo,
		"thresholds":  th,
		"relaxed":     relaxed,
	})
	if err != nil {
		return nil, err
	}
	return resp.verdict()
}

// FlashQuality implements Inspector.
func (s *Service) FlashQuality(img image.Image) (*QualityVerdict, error) {
	resp, err := s.call("flash_quality", nil, img)
	if err != nil {
		return nil, err
	}
	return resp.verdict()
}

// DetectEdge implements EdgeDetector.
func (s *Service) DetectEdge(img image.Image) (*EdgeResult, error) {
	resp, err := s.call("detect_edge", nil, img)
	if err != nil {
		return nil, err
	}
	out := &EdgeResult{Classification: resp.Classification}
	if resp.Corrected != "" {
		if out.Corrected, err = decodeImage(resp.Corrected); err != nil {
			return nil, fmt.Errorf("decode edge image: %w", err)
		}
	}
	return out, nil
}

// Score implements LightScorer.
func (s *Service) Score(img image.Image) (float64, error) {
	resp, err := s.call("light_value", nil, img)
	if err != nil {
		return 0, err
	}
	return resp.Score, nil
}

// Identify implements Identifier.
func (s *Service) Identify(ctx context.Context, images [3]image.Image) (*Identification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := s.call("identify", nil, images[0], images[1], images[2])
	if err != nil {
		return nil, err
	}
	return &Identification{Success: resp.Success, ErrorCodes: resp.ErrorCodes}, nil
}

// Close shuts down the bridge process.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

func (s *Service) call(method string, params map[string]any, images ...image.Image) (*response, error) {
	req := request{Method: method, Params: params}
	for _, img := range images {
		enc, err := encodeImage(img)
		if err != nil {
			return nil, fmt.Errorf("encode image: %w", err)
		}
		req.Images = append(req.Images, enc)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureStarted(); err != nil {
		return nil, err
	}

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(payload)))

	if _, err := s.stdin.Write(length); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := s.stdin.Write(payload); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := s.stdout.ReadString('\n')
	if err != nil {
		s.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	s.resetIdleTimer()

	if !resp.OK {
		return nil, fmt.Errorf("%s: %s", method, resp.Error)
	}
	return &resp, nil
}

func (r *response) verdict() (*QualityVerdict, error) {
	v := &QualityVerdict{
		Outcome:   ParseOutcome(r.Outcome),
		Digest:    r.Digest,
		Transport: r.Transport,
		Score:     r.Score,
	}
	var err error
	if r.Corrected != "" {
		if v.Corrected, err = decodeImage(r.Corrected); err != nil {
			return nil, fmt.Errorf("decode corrected image: %w", err)
		}
	}
	if r.Cut != "" {
		if v.Cut, err = decodeImage(r.Cut); err != nil {
			return nil, fmt.Errorf("decode cut image: %w", err)
		}
	}
	return v, nil
}

func (s *Service) ensureStarted() error {
	if s.started {
		return nil
	}

	s.cmd = exec.Command(s.command[0], s.command[1:]...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start inspection service: %w", err)
	}

	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true

	return nil
}

func (s *Service) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	return err
}

func (s *Service) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shutdown()
	})
}

func encodeImage(img image.Image) (string, error) {
	if img == nil {
		return "", nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return "", err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return "", err
	}
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}

func decodeImage(s string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("empty image")
	}
	return mat.ToImage()
}
