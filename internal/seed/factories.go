// Package seed provides helpers to create demo data for the catalog and the
// signup queue. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"
	"time"

	"appleverse/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Options configure the seeder.
type Options struct {
	NumPending int
	NumApples  int
	// Password is the plaintext secret given to every seeded signup request.
	Password string
	// Seed fixes the faker source so runs are reproducible; zero picks a random one.
	Seed int64
	// DryRun builds the records without persisting them.
	DryRun bool
}

var (
	cultivars = []string{
		"Honeycrisp", "Gala", "Fuji", "Granny Smith", "Braeburn", "Cox's Orange Pippin",
		"Jonagold", "McIntosh", "Pink Lady", "Golden Delicious", "Northern Spy", "Gravenstein",
		"Ashmead's Kernel", "Roxbury Russet", "Esopus Spitzenburg", "Arkansas Black",
	}
	species = []string{"domestica", "sieversii", "sylvestris", "orientalis", "baccata"}
)

// Factory builds demo entities with gofakeit.
type Factory struct {
	faker *gofakeit.Faker
	opts  Options
	// accession counter keeps generated accessions unique within a run
	next int
}

// NewFactory creates a Factory for the given options.
func NewFactory(opts Options) *Factory {
	var faker *gofakeit.Faker
	if opts.Seed != 0 {
		faker = gofakeit.New(opts.Seed)
	} else {
		faker = gofakeit.New(time.Now().UnixNano())
	}
	return &Factory{faker: faker, opts: opts, next: 1000}
}

// SignupRequest builds a pending-request submission. The email is unique per call.
func (f *Factory) SignupRequest() (name, dob, email string) {
	f.next++
	first, last := f.faker.FirstName(), f.faker.LastName()
	born := f.faker.DateRange(
		time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2004, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	email = fmt.Sprintf("%s.%s.%d@%s", strings.ToLower(first), strings.ToLower(last), f.next, f.faker.DomainName())
	return first + " " + last, born.Format("2006-01-02"), models.NormalizeEmail(strings.ReplaceAll(email, " ", ""))
}

// Apple builds a catalog entry with a unique accession.
func (f *Factory) Apple(overrides ...func(*models.Apple)) *models.Apple {
	f.next++
	accession := fmt.Sprintf("MAL%04d", f.next)
	apple := &models.Apple{
		ID:             strings.ToLower(accession),
		Acno:           fmt.Sprintf("%d", 20000+f.next),
		Accession:      accession,
		CultivarName:   f.faker.RandomString(cultivars),
		OriginCountry:  f.faker.Country(),
		OriginProvince: f.faker.State(),
		OriginCity:     f.faker.City(),
		Genus:          "Malus",
		Species:        f.faker.RandomString(species),
		Images: []string{
			fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()),
		},
		Extra: map[string]any{
			"harvest": f.faker.RandomString([]string{"early", "mid", "late"}),
			"notes":   f.faker.Sentence(8),
		},
	}
	for _, override := range overrides {
		override(apple)
	}
	return apple
}
