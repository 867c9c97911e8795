// Package normalize transforms raw upstream responses into the bounded,
// stable shape delivered to callers. The pipeline is a sequence of pure
// stages (strip, citation consolidation, size bounding, shape, cost)
// selected by the formatting flags recorded at submission time; given the
// same response and options it always produces the same output.
package normalize
