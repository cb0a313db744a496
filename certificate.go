//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package tls13

// certVerifyContextServer and certVerifyContextClient are the domain
// separation strings of the CertificateVerify signature (RFC 8446,
// Section 4.4.3).
const (
	certVerifyContextServer = "TLS 1.3, server CertificateVerify"
	certVerifyContextClient = "TLS 1.3, client CertificateVerify"
)

// certVerifyData builds the data to be signed for CertificateVerify:
// 64 spaces, the context string, a zero octet, and the transcript
// hash.
func certVerifyData(context string, transcriptHash []byte) []byte {
	data := make([]byte, 0, 64+len(context)+1+len(transcriptHash))
	for i := 0; i < 64; i++ {
		data = append(data, 0x20)
	}
	data = append(data, context...)
	data = append(data, 0)
	data = append(data, transcriptHash...)
	return data
}

// BuildCertificateMessage writes the body of a Certificate message:
// the request context and the certificate list with per-certificate
// extensions. It can be used to create a precompressed message.
func BuildCertificateMessage(buf *Buffer, requestContext []byte,
	certificates [][]byte, ocspStatus []byte) error {

	if err := buf.PushBlock(1, func() error {
		return buf.PushRaw(requestContext)
	}); err != nil {
		return err
	}
	return buf.PushBlock(3, func() error {
		for i, cert := range certificates {
			if err := buf.PushBlock(3, func() error {
				return buf.PushRaw(cert)
			}); err != nil {
				return err
			}
			if err := buf.PushBlock(2, func() error {
				if i != 0 || len(ocspStatus) == 0 {
					return nil
				}
				return pushExtension(buf, ETStatusRequest,
					func() error {
						// CertificateStatus: type ocsp(1),
						// DER-encoded OCSP response.
						if err := buf.PushUint8(1); err != nil {
							return err
						}
						return buf.PushBlock(3, func() error {
							return buf.PushRaw(ocspStatus)
						})
					})
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildCertificateBody produces the Certificate message body using
// the EmitCertificate callback or the context's certificate list.
func (c *Conn) buildCertificateBody(requestContext []byte,
	pushStatusRequest bool) ([]byte, error) {

	buf := NewBuffer(nil)
	if c.ctx.EmitCertificate != nil {
		err := c.ctx.EmitCertificate(c, buf, requestContext,
			pushStatusRequest)
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	err := BuildCertificateMessage(buf, requestContext,
		c.ctx.Certificates, nil)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// emitCertificate emits the Certificate message, compressing it into
// a CompressedCertificate when the peer supports the configured
// algorithm.
func (c *Conn) emitCertificate(em emitter, requestContext []byte,
	peerAlgos []CertificateCompressionAlgorithm,
	pushStatusRequest bool) error {

	body, err := c.buildCertificateBody(requestContext,
		pushStatusRequest)
	if err != nil {
		return err
	}

	comp := c.ctx.CompressCertificate
	if comp != nil && len(body) > 0 {
		supported := false
		for _, algo := range peerAlgos {
			if algo == comp.Algorithm {
				supported = true
				break
			}
		}
		if supported {
			compressed, err := comp.Compress(c, body)
			if err != nil {
				return internalErrorf(ErrorCompressionFailure,
					"certificate compression: %v", err)
			}
			return em.emit(c, c.sched, HTCompressedCertificate,
				func(buf *Buffer) error {
					if err := buf.PushUint16(
						uint16(comp.Algorithm)); err != nil {
						return err
					}
					if err := buf.PushUint24(
						uint32(len(body))); err != nil {
						return err
					}
					return buf.PushBlock(3, func() error {
						return buf.PushRaw(compressed)
					})
				})
		}
	}
	return em.emit(c, c.sched, HTCertificate, func(buf *Buffer) error {
		return buf.PushRaw(body)
	})
}

// emitCertificateVerify signs the current transcript and emits the
// CertificateVerify message.
func (c *Conn) emitCertificateVerify(em emitter, context string,
	offered []SignatureScheme) error {

	if c.ctx.SignCertificate == nil {
		return internalErrorf(ErrorNotAvailable,
			"no certificate signer")
	}
	data := certVerifyData(context, c.sched.transcriptHash())
	scheme, signature, err := c.ctx.SignCertificate(c, offered, data)
	if err != nil {
		return err
	}
	return em.emit(c, c.sched, HTCertificateVerify,
		func(buf *Buffer) error {
			if err := buf.PushUint16(uint16(scheme)); err != nil {
				return err
			}
			return buf.PushBlock(2, func() error {
				return buf.PushRaw(signature)
			})
		})
}

// decompressCertificate expands a CompressedCertificate message body
// into the equivalent Certificate message body.
func (c *Conn) decompressCertificate(body []byte) ([]byte, error) {
	dc := c.ctx.DecompressCertificate
	if dc == nil {
		return nil, alertError(AlertUnexpectedMessage)
	}
	cc, err := decodeCompressedCertificate(body)
	if err != nil {
		return nil, err
	}
	supported := false
	for _, algo := range dc.SupportedAlgorithms {
		if algo == cc.algorithm {
			supported = true
			break
		}
	}
	if !supported {
		return nil, alertError(AlertIllegalParameter)
	}
	output := make([]byte, cc.uncompressedSize)
	if err := dc.Decompress(c, cc.algorithm, output,
		cc.compressed); err != nil {
		return nil, alertErrorf(AlertBadCertificate,
			"certificate decompression: %v", err)
	}
	return output, nil
}

// handlePeerCertificate runs certificate verification on a decoded
// certificate message and stores the signature verifier.
func (c *Conn) handlePeerCertificate(
	cert *certificateMessage) (VerifySignFunc, error) {

	if c.ctx.VerifyCertificate == nil {
		return nil, nil
	}
	chain := make([][]byte, 0, len(cert.chain))
	for _, entry := range cert.chain {
		chain = append(chain, entry.data)
	}
	return c.ctx.VerifyCertificate(c, chain)
}
