package sample

// Extractor is the capability of converting an arbitrary reply payload into
// a Sample. Fetch reply streams yield Extractors so the reconciling
// subscriber can consume any payload-carrying type a query engine produces;
// a failing conversion skips that reply without aborting the fetch.
type Extractor interface {
	Extract() (Sample, error)
}

// Raw adapts a ready-made Sample to the Extractor capability.
type Raw Sample

// Extract returns the underlying sample; it never fails.
func (r Raw) Extract() (Sample, error) {
	return Sample(r), nil
}
