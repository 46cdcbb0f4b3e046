package ingest

// allSites is the head/site value of lot-wide bin summaries.
const allSites = 255

type siteKey struct {
	head int
	site int
}

// binRegistry maps (head, site) to bin names gathered from HBR or SBR records
// of the current lot.
type binRegistry map[siteKey]map[int]string

func (r binRegistry) record(head, site, bin int, name string) {
	key := siteKey{head: head, site: site}
	names, ok := r[key]
	if !ok {
		names = make(map[int]string)
		r[key] = names
	}
	names[bin] = name
}

// lookup tries the exact head/site first, then the lot-wide summary. It
// returns "" when neither knows the bin.
func (r binRegistry) lookup(head, site, bin int) string {
	if name, ok := r[siteKey{head: head, site: site}][bin]; ok {
		return name
	}
	if name, ok := r[siteKey{head: allSites, site: allSites}][bin]; ok {
		return name
	}
	return ""
}

// suiteRegistry maps test numbers to the suite that claimed them in the
// current lot.
type suiteRegistry map[int64]uint

func (r suiteRegistry) suiteFor(testNum int64) *uint {
	id, ok := r[testNum]
	if !ok {
		return nil
	}
	return &id
}
