package tle

// Fixture records with valid checksums.
const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"

	hstName  = "HST"
	hstLine1 = "1 20580U 90037B   24001.50000000  .00001234  00000-0  12345-3 0  9994"
	hstLine2 = "2 20580  28.4690 123.4567 0002789  45.6789 314.5678 15.15001234567890"

	// 1957 epoch, 57 pivots to the 1900s.
	vanguardLine1 = "1 00005U 58002B   57275.00000000 -.00000023  00000-0 -00000-0 0    17"
	vanguardLine2 = "2 00005  34.2500 200.1234 1845000 100.0000 260.0000 10.84000000123458"

	// 2056 epoch, 56 pivots to the 2000s.
	futureLine1 = "1 44713U 19074A   56366.00000000  .00000000  00000-0  00000+0 0 99994"
	futureLine2 = "2 44713  53.0000   0.0000 0000000   0.0000   0.0000 15.05000000    11"

	// Checksum is correct but the inclination contains a letter.
	badInclinationLine2 = "2 20580  28.4X90 123.4567 0002789  45.6789 314.5678 15.15001234567894"
)
