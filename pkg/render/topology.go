// ABOUTME: Output topology selection and per-format bed writers
// ABOUTME: Quad, 5.2.1, 7.2.1, 7.4.2, FOA, stereo family and mono sum
package render

import (
	"github.com/locusq/locusq-go/pkg/audio"
	"github.com/locusq/locusq-go/pkg/profile"
	"github.com/locusq/locusq-go/pkg/spatial"
)

// Writer identifies the topology writer a block is rendered through.
type Writer int

const (
	WriterNone Writer = iota
	WriterMono
	WriterStereo
	WriterQuad
	WriterFOA
	Writer521
	Writer721
	Writer742
)

// QuadOutputOrder maps host channel to internal speaker: FL, FR, RL, RR.
var QuadOutputOrder = [spatial.NumSpeakers]int{spatial.SpeakerFL, spatial.SpeakerFR, spatial.SpeakerRL, spatial.SpeakerRR}

// Channel label sets reported in diagnostics.
var (
	InternalSpeakerLabels = []string{"FL", "FR", "RR", "RL"}

	labels742    = []string{"L", "R", "C", "LFE1", "LFE2", "Ls", "Rs", "Lrs", "Rrs", "TopFL", "TopFR", "TopRL", "TopRR"}
	labels721    = []string{"L", "R", "C", "LFE1", "LFE2", "Ls", "Rs", "Lrs", "Rrs", "TopC"}
	labels521    = []string{"L", "R", "C", "LFE1", "LFE2", "Ls", "Rs", "TopC"}
	labelsFOA    = []string{"W", "X", "Y", "Z"}
	labelsQuad   = []string{"FL", "FR", "RL", "RR"}
	labelsStereo = []string{"L", "R"}
	labelsMono   = []string{"M"}
)

// OutputModeQuadFirst4 is reported when a wide host receives only the quad bed.
const OutputModeQuadFirst4 = "quad_map_first4"

// SelectWriter picks the writer for the active profile on a host with ch
// channels. Wider writers win when the host carries them.
func SelectWriter(active profile.Profile, ch int) Writer {
	switch {
	case ch <= 0:
		return WriterNone
	case ch >= 13 && (active == profile.Surround742 || active == profile.AtmosBed):
		return Writer742
	case ch >= 10 && (active == profile.Surround721 || active == profile.AtmosBed):
		return Writer721
	case ch >= 8 && active == profile.Surround521:
		return Writer521
	case ch >= spatial.NumSpeakers && active.IsAmbisonic():
		return WriterFOA
	case ch >= spatial.NumSpeakers:
		return WriterQuad
	case ch >= 2:
		return WriterStereo
	}
	return WriterMono
}

// Labels returns the channel labels the writer produces.
func (w Writer) Labels() []string {
	switch w {
	case Writer742:
		return labels742
	case Writer721:
		return labels721
	case Writer521:
		return labels521
	case WriterFOA:
		return labelsFOA
	case WriterQuad:
		return labelsQuad
	case WriterStereo:
		return labelsStereo
	case WriterMono:
		return labelsMono
	}
	return nil
}

// OutputMode is the diagnostic label for what the host receives.
func OutputMode(w Writer, active profile.Profile, headphone profile.HeadphoneMode) string {
	switch w {
	case WriterQuad:
		return OutputModeQuadFirst4
	case WriterStereo:
		if active == profile.Auto {
			return headphone.String()
		}
		return active.String()
	case WriterMono, WriterNone:
		return "mono_sum"
	}
	return active.String()
}

func bedFrame(bed *audio.Block, i int) (fl, fr, rr, rl float32) {
	return bed.Channels[spatial.SpeakerFL][i], bed.Channels[spatial.SpeakerFR][i],
		bed.Channels[spatial.SpeakerRR][i], bed.Channels[spatial.SpeakerRL][i]
}

func zeroFrom(out *audio.Block, first, i int) {
	for ch := first; ch < out.NumChannels(); ch++ {
		out.Channels[ch][i] = 0
	}
}

// writeSurround renders frame i of the bed through a 5.2.1, 7.2.1 or 7.4.2
// writer. Host channels past the layout are zeroed.
func writeSurround(w Writer, bed, out *audio.Block, i int, gain float32) {
	fl, fr, rr, rl := bedFrame(bed, i)
	sum := (fl + fr + rr + rl) * 0.25
	c := out.Channels
	c[0][i] = fl * gain
	c[1][i] = fr * gain
	c[2][i] = (fl + fr) * 0.70710678 * gain
	c[5][i] = rl * gain
	c[6][i] = rr * gain

	switch w {
	case Writer521:
		c[3][i] = sum * 0.35 * gain
		c[4][i] = sum * 0.35 * gain
		c[7][i] = sum * 0.8 * gain
		zeroFrom(out, 8, i)
	case Writer721:
		c[3][i] = sum * 0.33 * gain
		c[4][i] = sum * 0.33 * gain
		c[7][i] = (0.72*rl + 0.28*fl) * gain
		c[8][i] = (0.72*rr + 0.28*fr) * gain
		c[9][i] = sum * 0.8 * gain
		zeroFrom(out, 10, i)
	case Writer742:
		c[3][i] = sum * 0.30 * gain
		c[4][i] = sum * 0.30 * gain
		c[7][i] = (0.72*rl + 0.28*fl) * gain
		c[8][i] = (0.72*rr + 0.28*fr) * gain
		c[9][i] = (0.70*fl + 0.25*rl) * gain
		c[10][i] = (0.70*fr + 0.25*rr) * gain
		c[11][i] = (0.78*rl + 0.12*fl) * gain
		c[12][i] = (0.78*rr + 0.12*fr) * gain
		zeroFrom(out, 13, i)
	}
}

func writeFOA(bed, out *audio.Block, i int, gain float32) {
	w, x, y, z := profile.EncodeFOA(bedFrame(bed, i))
	out.Channels[0][i] = w * gain
	out.Channels[1][i] = x * gain
	out.Channels[2][i] = y * gain
	out.Channels[3][i] = z * gain
	zeroFrom(out, 4, i)
}

func writeQuad(bed, out *audio.Block, i int, gain float32) {
	for ch, spk := range QuadOutputOrder {
		out.Channels[ch][i] = bed.Channels[spk][i] * gain
	}
	zeroFrom(out, spatial.NumSpeakers, i)
}

func writeMono(bed, out *audio.Block, i int, gain float32) {
	fl, fr, rr, rl := bedFrame(bed, i)
	out.Channels[0][i] = (fl + fr + rr + rl) * 0.5 * gain
}

// Downmix folds the bed to stereo: left takes the left pair, right the right.
func Downmix(fl, fr, rr, rl float32) (float32, float32) {
	return (fl + rl) * 0.707, (fr + rr) * 0.707
}

// Virtual3d is a crossfeed virtualization of the bed for headphones.
func Virtual3d(fl, fr, rr, rl float32) (float32, float32) {
	l := 0.74*fl + 0.46*rl + 0.12*fr + 0.08*rr
	r := 0.74*fr + 0.46*rr + 0.12*fl + 0.08*rl
	return l, r
}

// AmbiStereo encodes the bed to the FOA proxy and decodes it to stereo.
func AmbiStereo(fl, fr, rr, rl float32) (float32, float32) {
	return profile.DecodeFOAStereo(profile.EncodeFOA(fl, fr, rr, rl))
}
