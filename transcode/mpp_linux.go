//go:build linux

package transcode

// This file generalizes the Rockchip MPP call sequence the original
// implementation's mpp_mjpeg_decoder.c and mpp_h264_encoder.c perform in
// C into the decoderHW/encoderHW shapes hwproc.go declares, following
// the teacher's cgo pattern (lcd/lcd_linux.go) of small static C helper
// functions wrapping the struct field and pointer manipulation cgo
// itself restricts.

/*
#cgo LDFLAGS: -lrockchip_mpp

#include <stdlib.h>
#include <string.h>
#include "rk_mpi.h"
#include "mpp_frame.h"
#include "mpp_packet.h"
#include "mpp_meta.h"

#ifndef MPP_ALIGN
#define MPP_ALIGN(x, a) (((x)+(a)-1)&~((a)-1))
#endif

static MPP_RET go_mpp_create_ctx(MppCtx *ctx, MppApi **mpi, MppCtxType type, MppCodingType coding, RK_U32 timeout_ms) {
	MPP_RET ret = mpp_create(ctx, mpi);
	if (ret != MPP_OK) {
		return ret;
	}
	RK_U32 timeout = timeout_ms;
	(*mpi)->control(*ctx, MPP_SET_OUTPUT_TIMEOUT, &timeout);
	return mpp_init(*ctx, type, coding);
}

static MPP_RET go_mpp_dec_setup(MppCtx ctx, MppApi *mpi) {
	MppFrameFormat fmt = MPP_FMT_YUV420SP;
	MPP_RET ret = mpi->control(ctx, MPP_DEC_SET_OUTPUT_FORMAT, &fmt);
	if (ret != MPP_OK) {
		return ret;
	}
	MppDecCfg cfg = NULL;
	ret = mpp_dec_cfg_init(&cfg);
	if (ret == MPP_OK) {
		if (mpi->control(ctx, MPP_DEC_GET_CFG, cfg) == MPP_OK) {
			mpp_dec_cfg_set_u32(cfg, "base:split_parse", 1);
			mpi->control(ctx, MPP_DEC_SET_CFG, cfg);
		}
		mpp_dec_cfg_deinit(cfg);
	}
	return MPP_OK;
}

static MPP_RET go_mpp_decode_one(MppCtx ctx, MppApi *mpi, void *data, size_t size,
		MppBuffer frm_buf,
		RK_U32 *out_width, RK_U32 *out_height,
		RK_U32 *out_hstride, RK_U32 *out_vstride,
		RK_U32 *out_info_change, RK_U32 *out_discard,
		void **out_ptr, size_t *out_size) {
	MppPacket packet = NULL;
	mpp_packet_init(&packet, data, size);
	mpp_packet_set_pos(packet, data);
	mpp_packet_set_length(packet, size);
	mpp_packet_set_pts(packet, 0);
	mpp_packet_set_dts(packet, 0);

	MppFrame frame = NULL;
	mpp_frame_init(&frame);
	if (frm_buf) {
		mpp_frame_set_buffer(frame, frm_buf);
	}
	mpp_meta_set_frame(mpp_packet_get_meta(packet), KEY_OUTPUT_FRAME, frame);

	MPP_RET ret = mpi->decode_put_packet(ctx, packet);
	if (ret != MPP_OK) {
		mpp_packet_deinit(&packet);
		mpp_frame_deinit(&frame);
		return ret;
	}

	MppFrame out = NULL;
	ret = mpi->decode_get_frame(ctx, &out);
	mpp_packet_deinit(&packet);
	if (ret != MPP_OK || !out) {
		if (frame) mpp_frame_deinit(&frame);
		return ret;
	}

	*out_info_change = mpp_frame_get_info_change(out) ? 1 : 0;
	*out_width = mpp_frame_get_width(out);
	*out_height = mpp_frame_get_height(out);
	*out_hstride = mpp_frame_get_hor_stride(out);
	*out_vstride = mpp_frame_get_ver_stride(out);
	*out_discard = (mpp_frame_get_errinfo(out) || mpp_frame_get_discard(out)) ? 1 : 0;

	if (!*out_info_change && !*out_discard) {
		MppBuffer buf = mpp_frame_get_buffer(out);
		if (buf) {
			*out_ptr = mpp_buffer_get_ptr(buf);
			*out_size = mpp_buffer_get_size(buf);
		}
	}
	mpp_frame_deinit(&out);
	return MPP_OK;
}

static MPP_RET go_mpp_dec_info_change_ready(MppCtx ctx, MppApi *mpi) {
	return mpi->control(ctx, MPP_DEC_SET_INFO_CHANGE_READY, NULL);
}

static MPP_RET go_mpp_enc_configure(MppCtx ctx, MppApi *mpi, RK_U32 width, RK_U32 height,
		RK_U32 hstride, RK_U32 vstride, RK_U32 rc_mode, RK_U32 bps,
		RK_U32 fps_num, RK_U32 fps_den, RK_U32 gop, RK_U32 profile, RK_U32 level,
		RK_U32 qp_init, RK_U32 qp_min, RK_U32 qp_max) {
	MppEncCfg cfg = NULL;
	MPP_RET ret = mpp_enc_cfg_init(&cfg);
	if (ret != MPP_OK) {
		return ret;
	}
	mpi->control(ctx, MPP_ENC_GET_CFG, cfg);

	mpp_enc_cfg_set_s32(cfg, "prep:width", width);
	mpp_enc_cfg_set_s32(cfg, "prep:height", height);
	mpp_enc_cfg_set_s32(cfg, "prep:hor_stride", hstride);
	mpp_enc_cfg_set_s32(cfg, "prep:ver_stride", vstride);
	mpp_enc_cfg_set_s32(cfg, "prep:format", MPP_FMT_YUV420SP);
	mpp_enc_cfg_set_s32(cfg, "prep:range", MPP_FRAME_RANGE_JPEG);

	mpp_enc_cfg_set_s32(cfg, "rc:mode", rc_mode);
	mpp_enc_cfg_set_s32(cfg, "rc:bps_target", bps);
	mpp_enc_cfg_set_s32(cfg, "rc:bps_max", bps * 12 / 10);
	mpp_enc_cfg_set_s32(cfg, "rc:bps_min", bps * 8 / 10);
	mpp_enc_cfg_set_s32(cfg, "rc:fps_in_flex", 0);
	mpp_enc_cfg_set_s32(cfg, "rc:fps_in_num", fps_num);
	mpp_enc_cfg_set_s32(cfg, "rc:fps_in_denorm", fps_den);
	mpp_enc_cfg_set_s32(cfg, "rc:fps_out_flex", 0);
	mpp_enc_cfg_set_s32(cfg, "rc:fps_out_num", fps_num);
	mpp_enc_cfg_set_s32(cfg, "rc:fps_out_denorm", fps_den);
	mpp_enc_cfg_set_s32(cfg, "rc:gop", gop);

	mpp_enc_cfg_set_s32(cfg, "h264:profile", profile);
	mpp_enc_cfg_set_s32(cfg, "h264:level", level);
	mpp_enc_cfg_set_s32(cfg, "h264:cabac_en", 1);
	mpp_enc_cfg_set_s32(cfg, "h264:trans8x8", 1);
	mpp_enc_cfg_set_s32(cfg, "rc:qp_init", qp_init);
	mpp_enc_cfg_set_s32(cfg, "rc:qp_min", qp_min);
	mpp_enc_cfg_set_s32(cfg, "rc:qp_max", qp_max);

	ret = mpi->control(ctx, MPP_ENC_SET_CFG, cfg);
	mpp_enc_cfg_deinit(cfg);
	return ret;
}

static MPP_RET go_mpp_encode_one(MppCtx ctx, MppApi *mpi, MppBuffer frm_buf, MppBuffer pkt_buf,
		void *nv12, size_t nv12_size, RK_U32 width, RK_U32 height,
		RK_U32 hstride, RK_U32 vstride, RK_U32 force_key) {
	memcpy(mpp_buffer_get_ptr(frm_buf), nv12, nv12_size);
	mpp_buffer_sync_end(frm_buf);

	MppFrame frame = NULL;
	mpp_frame_init(&frame);
	mpp_frame_set_width(frame, width);
	mpp_frame_set_height(frame, height);
	mpp_frame_set_hor_stride(frame, hstride);
	mpp_frame_set_ver_stride(frame, vstride);
	mpp_frame_set_fmt(frame, MPP_FMT_YUV420SP);
	mpp_frame_set_eos(frame, 0);
	mpp_frame_set_buffer(frame, frm_buf);

	MppPacket packet = NULL;
	mpp_packet_init_with_buffer(&packet, pkt_buf);
	mpp_packet_set_length(packet, 0);

	MppMeta meta = mpp_frame_get_meta(frame);
	mpp_meta_set_packet(meta, KEY_OUTPUT_PACKET, packet);
	mpp_meta_set_ptr(meta, KEY_MOTION_INFO, NULL);
	if (force_key) {
		mpp_meta_set_s32(meta, KEY_OUTPUT_INTRA, 1);
	}

	MPP_RET ret = mpi->encode_put_frame(ctx, frame);
	mpp_frame_deinit(&frame);
	return ret;
}

static MPP_RET go_mpp_encode_get_packet(MppCtx ctx, MppApi *mpi, void **out_ptr, size_t *out_len, RK_U32 *out_intra) {
	MppPacket packet = NULL;
	MPP_RET ret = mpi->encode_get_packet(ctx, &packet);
	if (ret != MPP_OK || !packet) {
		return ret;
	}
	*out_ptr = mpp_packet_get_pos(packet);
	*out_len = mpp_packet_get_length(packet);
	RK_S32 intra = 0;
	mpp_meta_get_s32(mpp_packet_get_meta(packet), KEY_OUTPUT_INTRA, &intra);
	*out_intra = intra ? 1 : 0;
	mpp_packet_deinit(&packet);
	return MPP_OK;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"kvmvideo.dev/frame"
)

// mppDecoder is the cgo-backed decoderHW implementation.
type mppDecoder struct {
	ctx C.MppCtx
	mpi *C.MppApi

	frmGrp  C.MppBufferGroup
	bufs    []C.MppBuffer
	bufSize int

	maxWidth, maxHeight int
}

func newDecoderHW(maxWidth, maxHeight int, timeoutMS int) (decoderHW, error) {
	d := &mppDecoder{maxWidth: maxWidth, maxHeight: maxHeight}
	ret := C.go_mpp_create_ctx(&d.ctx, &d.mpi, C.MPP_CTX_DEC, C.MPP_VIDEO_CodingMJPEG, C.RK_U32(timeoutMS))
	if ret != C.MPP_OK {
		return nil, fmt.Errorf("mpp_create/init: %d", int(ret))
	}
	if ret := C.go_mpp_dec_setup(d.ctx, d.mpi); ret != C.MPP_OK {
		return nil, fmt.Errorf("mpp decoder setup: %d", int(ret))
	}
	return d, nil
}

func (d *mppDecoder) ensureOutputGroup(width, height int) error {
	if d.frmGrp != nil {
		return nil
	}
	if ret := C.mpp_buffer_group_get_external(&d.frmGrp, C.MPP_BUFFER_TYPE_DRM|C.MPP_BUFFER_FLAGS_CACHABLE); ret != C.MPP_OK {
		return fmt.Errorf("buffer_group_get_external: %d", int(ret))
	}
	hstride := frame.Align16(width)
	vstride := frame.Align16(height)
	d.bufSize = hstride * vstride * 4

	const slots = 24
	d.bufs = make([]C.MppBuffer, 0, slots)
	for i := 0; i < slots; i++ {
		var buf C.MppBuffer
		if ret := C.mpp_buffer_get(d.frmGrp, &buf, C.size_t(d.bufSize)); ret != C.MPP_OK {
			break
		}
		C.mpp_buffer_put(buf)
		d.bufs = append(d.bufs, buf)
	}
	if ret := d.mpi.control(d.ctx, C.MPP_DEC_SET_EXT_BUF_GROUP, unsafe.Pointer(d.frmGrp)); ret != C.MPP_OK {
		return fmt.Errorf("set_ext_buf_group: %d", int(ret))
	}
	return nil
}

func (d *mppDecoder) Decode(jpeg []byte) (output []byte, width, height, horStride, verStride int, infoChange, discard bool, err error) {
	if len(jpeg) == 0 {
		return nil, 0, 0, 0, 0, false, false, fmt.Errorf("empty input")
	}
	cdata := C.CBytes(jpeg)
	defer C.free(cdata)

	var w, h, hs, vs, ic, disc C.RK_U32
	var outPtr unsafe.Pointer
	var outSize C.size_t

	var frmBuf C.MppBuffer
	if len(d.bufs) > 0 {
		frmBuf = d.bufs[0]
	}

	ret := C.go_mpp_decode_one(d.ctx, d.mpi, cdata, C.size_t(len(jpeg)), frmBuf,
		&w, &h, &hs, &vs, &ic, &disc, &outPtr, &outSize)
	if ret != C.MPP_OK {
		return nil, 0, 0, 0, 0, false, false, fmt.Errorf("mpp decode: %d", int(ret))
	}

	infoChange = ic != 0
	discard = disc != 0
	width, height, horStride, verStride = int(w), int(h), int(hs), int(vs)

	if infoChange {
		if err := d.ensureOutputGroup(width, height); err != nil {
			return nil, width, height, horStride, verStride, true, false, err
		}
		return nil, width, height, horStride, verStride, true, false, nil
	}
	if discard || outPtr == nil {
		return nil, width, height, horStride, verStride, false, true, nil
	}
	return C.GoBytes(outPtr, C.int(outSize)), width, height, horStride, verStride, false, false, nil
}

func (d *mppDecoder) AckInfoChange() error {
	if ret := C.go_mpp_dec_info_change_ready(d.ctx, d.mpi); ret != C.MPP_OK {
		return fmt.Errorf("info_change_ready: %d", int(ret))
	}
	return nil
}

func (d *mppDecoder) Reset() error {
	if ret := d.mpi.reset(d.ctx); ret != C.MPP_OK {
		return fmt.Errorf("mpp reset: %d", int(ret))
	}
	return nil
}

func (d *mppDecoder) Close() error {
	for _, buf := range d.bufs {
		C.mpp_buffer_put(buf)
	}
	if d.frmGrp != nil {
		C.mpp_buffer_group_put(d.frmGrp)
	}
	if d.ctx != nil {
		d.mpi.reset(d.ctx)
		C.mpp_destroy(d.ctx)
	}
	return nil
}

// mppEncoder is the cgo-backed encoderHW implementation.
type mppEncoder struct {
	ctx C.MppCtx
	mpi *C.MppApi

	pktGrp C.MppBufferGroup
	frmBuf C.MppBuffer
	pktBuf C.MppBuffer

	width, height, hstride, vstride int
}

func newEncoderHW(maxWidth, maxHeight int, timeoutMS int) (encoderHW, error) {
	e := &mppEncoder{width: maxWidth, height: maxHeight}
	e.hstride = frame.Align64(frame.Align16(maxWidth))
	e.vstride = frame.Align64(frame.Align16(maxHeight))

	ret := C.go_mpp_create_ctx(&e.ctx, &e.mpi, C.MPP_CTX_ENC, C.MPP_VIDEO_CodingAVC, C.RK_U32(timeoutMS))
	if ret != C.MPP_OK {
		return nil, fmt.Errorf("mpp_create/init: %d", int(ret))
	}

	size := e.hstride * e.vstride * 3 / 2
	if ret := C.mpp_buffer_group_get_internal(&e.pktGrp, C.MPP_BUFFER_TYPE_DRM|C.MPP_BUFFER_FLAGS_CACHABLE); ret != C.MPP_OK {
		return nil, fmt.Errorf("buffer_group_get_internal: %d", int(ret))
	}
	if ret := C.mpp_buffer_get(e.pktGrp, &e.frmBuf, C.size_t(size)); ret != C.MPP_OK {
		return nil, fmt.Errorf("buffer_get(frame): %d", int(ret))
	}
	if ret := C.mpp_buffer_get(e.pktGrp, &e.pktBuf, C.size_t(size)); ret != C.MPP_OK {
		return nil, fmt.Errorf("buffer_get(packet): %d", int(ret))
	}
	return e, nil
}

func (e *mppEncoder) Configure(profile EncoderProfile, rc RCMode, bitrateKbps, gopSize, fpsNum, fpsDen int) error {
	ret := C.go_mpp_enc_configure(e.ctx, e.mpi,
		C.RK_U32(e.width), C.RK_U32(e.height), C.RK_U32(e.hstride), C.RK_U32(e.vstride),
		C.RK_U32(rc), C.RK_U32(bitrateKbps*1000),
		C.RK_U32(fpsNum), C.RK_U32(fpsDen), C.RK_U32(gopSize),
		C.RK_U32(profile.Profile), C.RK_U32(profile.Level),
		C.RK_U32(profile.QPInit), C.RK_U32(profile.QPMin), C.RK_U32(profile.QPMax))
	if ret != C.MPP_OK {
		return fmt.Errorf("enc configure: %d", int(ret))
	}
	return nil
}

func (e *mppEncoder) PutFrame(nv12 []byte, width, height int, forceKey bool) error {
	cdata := C.CBytes(nv12)
	defer C.free(cdata)
	fk := C.RK_U32(0)
	if forceKey {
		fk = 1
	}
	ret := C.go_mpp_encode_one(e.ctx, e.mpi, e.frmBuf, e.pktBuf, cdata, C.size_t(len(nv12)),
		C.RK_U32(width), C.RK_U32(height), C.RK_U32(e.hstride), C.RK_U32(e.vstride), fk)
	if ret != C.MPP_OK {
		return fmt.Errorf("encode_put_frame: %d", int(ret))
	}
	return nil
}

func (e *mppEncoder) GetPacket() (data []byte, isIntra bool, timeout bool, err error) {
	var ptr unsafe.Pointer
	var length C.size_t
	var intra C.RK_U32
	ret := C.go_mpp_encode_get_packet(e.ctx, e.mpi, &ptr, &length, &intra)
	switch ret {
	case C.MPP_OK:
		if ptr == nil {
			return nil, false, false, nil
		}
		return C.GoBytes(ptr, C.int(length)), intra != 0, false, nil
	case C.MPP_ERR_TIMEOUT:
		return nil, false, true, nil
	default:
		return nil, false, false, fmt.Errorf("encode_get_packet: %d", int(ret))
	}
}

func (e *mppEncoder) Reset() error {
	if ret := e.mpi.reset(e.ctx); ret != C.MPP_OK {
		return fmt.Errorf("mpp reset: %d", int(ret))
	}
	return nil
}

func (e *mppEncoder) Close() error {
	if e.frmBuf != nil {
		C.mpp_buffer_put(e.frmBuf)
	}
	if e.pktBuf != nil {
		C.mpp_buffer_put(e.pktBuf)
	}
	if e.pktGrp != nil {
		C.mpp_buffer_group_put(e.pktGrp)
	}
	if e.ctx != nil {
		e.mpi.reset(e.ctx)
		C.mpp_destroy(e.ctx)
	}
	return nil
}
