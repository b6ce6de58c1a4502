package recorder

import (
	"fmt"
	"strings"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
)

// buildArgs assembles the ffmpeg invocation for a capture spec. Per
// capture the streams are copied as-is; the combined mode mixes audio
// and tiles video, which forces a transcode.
func buildArgs(spec ports.CaptureSpec, sdpPath string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostats",
		"-protocol_whitelist", "file,udp,rtp",
		"-f", "sdp",
		"-i", sdpPath,
	}

	if spec.Combined {
		args = append(args, combinedArgs(spec.Inputs)...)
	} else {
		args = append(args, "-c", "copy")
	}

	return append(args, "-y", spec.OutputPath)
}

func combinedArgs(inputs []ports.CaptureInput) []string {
	var audio, video int
	for _, in := range inputs {
		if in.Kind == domain.MediaKindAudio {
			audio++
		} else {
			video++
		}
	}

	var args []string
	var filters []string

	switch {
	case audio > 1:
		var b strings.Builder
		for i := 0; i < audio; i++ {
			fmt.Fprintf(&b, "[0:a:%d]", i)
		}
		fmt.Fprintf(&b, "amix=inputs=%d:duration=longest[aout]", audio)
		filters = append(filters, b.String())
	case audio == 1:
		args = append(args, "-map", "0:a:0")
	}

	switch {
	case video > 1:
		var b strings.Builder
		for i := 0; i < video; i++ {
			fmt.Fprintf(&b, "[0:v:%d]", i)
		}
		fmt.Fprintf(&b, "xstack=inputs=%d:layout=%s:fill=black[vout]", video, gridLayout(video))
		filters = append(filters, b.String())
	case video == 1:
		args = append(args, "-map", "0:v:0")
	}

	if len(filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
		if audio > 1 {
			args = append(args, "-map", "[aout]")
		}
		if video > 1 {
			args = append(args, "-map", "[vout]")
		}
	}

	if audio > 0 {
		args = append(args, "-c:a", "libopus", "-b:a", "128k")
	}
	if video > 0 {
		args = append(args, "-c:v", "libvpx", "-b:v", "1M", "-deadline", "realtime", "-cpu-used", "4")
	}
	return args
}

// gridLayout produces an xstack layout packing n tiles into a near
// square grid, e.g. "0_0|w0_0|0_h0|w0_h0" for four inputs.
func gridLayout(n int) string {
	cols := 1
	for cols*cols < n {
		cols++
	}

	cells := make([]string, 0, n)
	for i := 0; i < n; i++ {
		cells = append(cells, axisOffset("w0", i%cols)+"_"+axisOffset("h0", i/cols))
	}
	return strings.Join(cells, "|")
}

func axisOffset(unit string, idx int) string {
	if idx == 0 {
		return "0"
	}
	parts := make([]string, idx)
	for i := range parts {
		parts[i] = unit
	}
	return strings.Join(parts, "+")
}
