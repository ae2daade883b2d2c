package generator

import "math/rand/v2"

// Name pools for synthesized patients. Values are fictitious and carry no
// relation to real persons.
var (
	maleFirstNames = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Thomas", "Charles", "Daniel", "Matthew", "Anthony", "Mark", "Steven",
		"Andrew", "Paul", "Joshua", "Kenneth", "Kevin", "Brian", "George",
		"Edward", "Ronald", "Timothy", "Jason", "Jeffrey", "Ryan", "Jacob",
	}

	femaleFirstNames = []string{
		"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara",
		"Susan", "Jessica", "Sarah", "Karen", "Lisa", "Nancy", "Betty",
		"Margaret", "Sandra", "Ashley", "Kimberly", "Emily", "Donna",
		"Michelle", "Carol", "Amanda", "Dorothy", "Melissa", "Deborah",
	}

	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
		"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
		"Lee", "Perez", "Thompson", "White", "Harris", "Sanchez", "Clark",
		"Ramirez", "Lewis", "Robinson", "Walker", "Young", "Allen", "King",
	}
)

// patientName returns a DICOM-formatted "LAST^FIRST" name for the given
// sex code ("M", "F", anything else picks from the female pool).
func patientName(sex string, rng *rand.Rand) string {
	var first string
	if sex == "M" {
		first = maleFirstNames[rng.IntN(len(maleFirstNames))]
	} else {
		first = femaleFirstNames[rng.IntN(len(femaleFirstNames))]
	}
	return lastNames[rng.IntN(len(lastNames))] + "^" + first
}
